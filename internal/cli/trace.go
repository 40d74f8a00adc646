package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/store"
)

// TraceEntry is one logged event and the provenance changes it caused.
type TraceEntry struct {
	Seq     int64          `json:"seq"`
	Kind    string         `json:"kind"`
	Subject string         `json:"subject,omitempty"` // edited path or activated section
	At      time.Time      `json:"at"`
	Changes []SourceChange `json:"changes"`
}

// SourceChange is a provenance tag set or cleared. An empty Tag is a clear.
type SourceChange struct {
	Path string `json:"path"`
	Tag  string `json:"tag"`
}

// TraceResult is the provenance timeline of one draft.
type TraceResult struct {
	DraftID  string       `json:"draft_id"`
	Path     string       `json:"path,omitempty"`
	Timeline []TraceEntry `json:"timeline"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <draft-id> [path]",
		Short: "Show where a draft's fields got their values",
		Long: `Show a draft's event log with the provenance changes each event caused:
which source filled a field, when the user took it over, and when clearing
it handed it back to derivation.

With a path, only events that edited that path or changed its source are
shown.

Examples:
  formsync trace filing-42 --db drafts.db
  formsync trace filing-42 form3_applicant_name --db drafts.db`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 2 {
				path = args[1]
			}
			return runTrace(cmd.Context(), rootOpts, args[0], path, cmd)
		},
	}

	return cmd
}

func runTrace(ctx context.Context, opts *RootOptions, draftID, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts, cmd)

	st, err := store.Open(opts.DB, store.WithLogger(opts.Logger(f.GetErrWriter())))
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, draftID, path)
	if errors.Is(err, store.ErrNotFound) {
		return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no events for draft %s", draftID), nil)
	}
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	if f.JSON() {
		return f.Success(result)
	}
	printTrace(f, result)
	return nil
}

func buildTrace(ctx context.Context, st *store.Store, draftID, path string) (*TraceResult, error) {
	events, err := st.ReadEvents(ctx, draftID, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("draft %s: %w", draftID, store.ErrNotFound)
	}
	history, err := st.ReadProvenanceHistory(ctx, draftID, path)
	if err != nil {
		return nil, err
	}

	bySeq := make(map[int64][]SourceChange)
	for _, h := range history {
		bySeq[h.Seq] = append(bySeq[h.Seq], SourceChange{Path: h.Path, Tag: h.Tag})
	}

	result := &TraceResult{DraftID: draftID, Path: path, Timeline: []TraceEntry{}}
	for _, ev := range events {
		entry := TraceEntry{
			Seq:     ev.Seq,
			Kind:    ev.Kind,
			Subject: subject(ev.Payload),
			At:      ev.At,
			Changes: bySeq[ev.Seq],
		}
		if entry.Changes == nil {
			entry.Changes = []SourceChange{}
		}
		if path != "" && len(entry.Changes) == 0 && entry.Subject != path {
			continue
		}
		result.Timeline = append(result.Timeline, entry)
	}
	return result, nil
}

func subject(payload ir.IRObject) string {
	for _, key := range []string{"path", "section_id"} {
		if s, ok := payload[key].(ir.IRString); ok {
			return string(s)
		}
	}
	return ""
}

func printTrace(f *OutputFormatter, result *TraceResult) {
	title := "Draft " + result.DraftID
	if result.Path != "" {
		title += ", field " + result.Path
	}
	f.Printf("%s\n\n", title)
	if len(result.Timeline) == 0 {
		f.Printf("  (no events)\n")
		return
	}
	for _, e := range result.Timeline {
		line := fmt.Sprintf("  %3d  %s  %s", e.Seq, e.At.Format(time.RFC3339), e.Kind)
		if e.Subject != "" {
			line += " " + e.Subject
		}
		f.Printf("%s\n", line)
		for _, c := range e.Changes {
			tag := c.Tag
			if tag == "" {
				tag = "(cleared)"
			}
			f.Printf("         %s <- %s\n", c.Path, tag)
		}
	}
}
