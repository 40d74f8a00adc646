package cli

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/session"
	"github.com/roach88/formsync/internal/store"
)

// ReplayDraftResult is the replay outcome for one draft.
type ReplayDraftResult struct {
	DraftID       string `json:"draft_id"`
	Events        int    `json:"events"`
	Seq           int64  `json:"seq"`
	SavedHash     string `json:"saved_hash"`
	ReplayedHash  string `json:"replayed_hash,omitempty"`
	Deterministic bool   `json:"deterministic"`
	Problem       string `json:"problem,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Drafts           []ReplayDraftResult `json:"drafts"`
	Total            int                 `json:"total"`
	AllDeterministic bool                `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [draft-id]",
		Short: "Rebuild drafts from their event logs and check the saved hash",
		Long: `Rebuild each draft by replaying its event log through the rule table
with the clock readings recorded at the time, then compare fields and
provenance with the saved snapshot. Events logged after the last save are
not replayed.

Without a draft id every saved draft is replayed.

Exit codes:
  0 - every draft replayed to its saved snapshot
  1 - a replay differed, or a draft was saved under different rules
  2 - command error (database unreadable, unknown draft, etc.)

Examples:
  formsync replay --db drafts.db
  formsync replay filing-42 --db drafts.db --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), rootOpts, args, cmd)
		},
	}

	return cmd
}

func runReplay(ctx context.Context, opts *RootOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts, cmd)

	loaded, err := loadRules(f, opts)
	if err != nil {
		return err
	}
	logger := opts.Logger(f.GetErrWriter())
	eng, err := newEngine(loaded.RuleSet, time.Now, logger)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	st, err := store.Open(opts.DB, store.WithLogger(logger))
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer st.Close()

	ids := args
	if len(ids) == 0 {
		drafts, err := st.ListDrafts(ctx)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to list drafts: %v", err), nil)
		}
		for _, d := range drafts {
			ids = append(ids, d.ID)
		}
	}

	result := ReplayResult{Drafts: make([]ReplayDraftResult, 0, len(ids)), AllDeterministic: true}
	for _, id := range ids {
		f.VerboseLog("replaying %s", id)
		r, err := replayDraft(ctx, eng, loaded.Hash, st, id)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to replay draft %s: %v", id, err), nil)
		}
		result.Drafts = append(result.Drafts, r)
		if !r.Deterministic {
			result.AllDeterministic = false
		}
	}
	result.Total = len(result.Drafts)

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printReplay(f, result)
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay differed from the saved snapshot")
	}
	return nil
}

func replayDraft(ctx context.Context, eng *engine.Engine, rulesHash string, st *store.Store, id string) (ReplayDraftResult, error) {
	d, err := st.LoadDraft(ctx, id)
	if err != nil {
		return ReplayDraftResult{}, err
	}
	res := ReplayDraftResult{DraftID: id, Seq: d.Seq, SavedHash: d.Hash}
	if d.RuleSetHash != rulesHash {
		res.Problem = fmt.Sprintf("saved with rule table %s (%s)", d.RuleSet, short(d.RuleSetHash))
		return res, nil
	}

	records, err := st.ReadEvents(ctx, id, 0)
	if err != nil {
		return ReplayDraftResult{}, err
	}
	log, err := session.LoadLog(records)
	if err != nil {
		return ReplayDraftResult{}, err
	}
	var saved []engine.Recorded
	for _, rec := range log {
		if rec.Seq <= d.Seq {
			saved = append(saved, rec)
		}
	}
	res.Events = len(saved)

	state, ok, err := eng.VerifyReplay(saved, d.Hash)
	if err != nil {
		res.Problem = err.Error()
		return res, nil
	}
	if res.ReplayedHash, err = state.Fields.Hash(); err != nil {
		return ReplayDraftResult{}, err
	}
	switch {
	case !ok:
		res.Problem = "fields differ"
	case !maps.Equal(state.Provenance.Snapshot(), d.Provenance):
		res.Problem = "provenance differs"
	default:
		res.Deterministic = true
	}
	return res, nil
}

func printReplay(f *OutputFormatter, result ReplayResult) {
	if result.Total == 0 {
		f.Printf("No drafts found in database.\n")
		return
	}
	for _, r := range result.Drafts {
		if r.Deterministic {
			f.Printf("✓ %s: %d event(s) replayed to %s\n", r.DraftID, r.Events, short(r.SavedHash))
			continue
		}
		f.Printf("✗ %s: %s\n", r.DraftID, r.Problem)
		if r.ReplayedHash != "" {
			f.Printf("    saved    %s\n    replayed %s\n", r.SavedHash, r.ReplayedHash)
		}
	}
	f.Printf("\n%d draft(s), deterministic: %t\n", result.Total, result.AllDeterministic)
}
