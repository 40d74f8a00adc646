package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/session"
	"github.com/roach88/formsync/internal/store"
)

// DeriveOptions holds flags for the derive command.
type DeriveOptions struct {
	*RootOptions
	editFlags
	Now     string
	Save    bool
	DraftID string
}

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeriveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "derive <draft-file>",
		Short: "Load a draft and derive every field the rules can fill",
		Long: `Load a YAML or JSON draft, run every derivation rule and template, and
print each target with its status, value and source.

--set and --activate apply edits after the load, in the order given.
--save records the load and every edit in the draft store so the draft can
be replayed and traced later. Saving to an existing --draft resets it to the
file's contents.

Examples:
  formsync derive draft.yaml
  formsync derive draft.yaml --set form3_applicant_name=
  formsync derive draft.yaml --now 2026-03-09 --format json
  formsync derive draft.yaml --save --db drafts.db --draft filing-42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "field edit path=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Activate, "activate", nil, "section to activate (repeatable)")
	cmd.Flags().StringVar(&opts.Now, "now", "", "clock for date defaults (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "record the draft in the store")
	cmd.Flags().StringVar(&opts.DraftID, "draft", "", "draft id for --save (default: new UUIDv7)")

	return cmd
}

func runDerive(ctx context.Context, opts *DeriveOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts.RootOptions, cmd)

	loaded, err := loadRules(f, opts.RootOptions)
	if err != nil {
		return err
	}
	now, err := parseNow(opts.Now)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	snapshot, err := ReadDraft(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeDraftRead, err.Error(), nil)
	}
	edits, err := opts.events()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	logger := opts.Logger(f.GetErrWriter())
	eng, err := newEngine(loaded.RuleSet, now, logger)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	var (
		state   engine.State
		changed []string
		draftID string
	)
	if opts.Save {
		state, changed, draftID, err = deriveAndSave(ctx, opts, eng, loaded, snapshot, edits, now, logger)
	} else {
		state, changed, err = deriveOnly(eng, snapshot, edits)
	}
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			code := ErrCodeStore
			if exitErr.Code == ExitFailure {
				code = ErrCodeRuleMismatch
			}
			_ = f.Error(code, exitErr.Error(), nil)
			return err
		}
		return f.fail(ExitFailure, ErrCodeDerive, err.Error(), nil)
	}

	res, err := newDeriveResult(eng, state, changed)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	res.DraftID = draftID
	if f.JSON() {
		return f.Success(res)
	}
	printDerive(f, eng, state, res)
	return nil
}

func deriveOnly(eng *engine.Engine, snapshot ir.IRObject, edits []engine.Event) (engine.State, []string, error) {
	t, err := eng.Apply(engine.NewState(), engine.EventLoad{Snapshot: snapshot})
	if err != nil {
		return engine.State{}, nil, err
	}
	changed := [][]string{t.Changed}
	for _, ev := range edits {
		t, err = eng.Apply(t.State, ev)
		if err != nil {
			return engine.State{}, nil, fmt.Errorf("%s: %w", ev.Kind(), err)
		}
		changed = append(changed, t.Changed)
	}
	return t.State, uniqueSorted(changed...), nil
}

// deriveAndSave runs the same events through a session so each one is
// logged. An existing draft is resumed and reset to snapshot.
func deriveAndSave(ctx context.Context, opts *DeriveOptions, eng *engine.Engine, loaded *LoadResult,
	snapshot ir.IRObject, edits []engine.Event, now func() time.Time, logger *slog.Logger) (engine.State, []string, string, error) {
	st, err := store.Open(opts.DB, store.WithLogger(logger))
	if err != nil {
		return engine.State{}, nil, "", WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sopts := []session.Option{
		session.WithAutosaveInterval(0),
		session.WithNow(now),
		session.WithLogger(logger),
	}
	if opts.DraftID != "" {
		sopts = append(sopts, session.WithDraftIDGenerator(session.NewFixedGenerator(opts.DraftID)))
	}

	first := engine.Event(engine.EventLoad{Snapshot: snapshot})
	sess, err := openSession(ctx, st, eng, loaded, opts.DraftID, sopts)
	if err != nil {
		return engine.State{}, nil, "", err
	}
	if sess.Seq() > 0 {
		first = engine.EventReset{Snapshot: snapshot}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })

	var changed [][]string
	submitErr := func() error {
		for _, ev := range append([]engine.Event{first}, edits...) {
			t, err := sess.Submit(gctx, ev)
			if err != nil {
				return fmt.Errorf("%s: %w", ev.Kind(), err)
			}
			changed = append(changed, t.Changed)
		}
		return nil
	}()
	sess.Close()
	if err := g.Wait(); err != nil {
		return engine.State{}, nil, "", WrapExitError(ExitCommandError, "session failed", err)
	}
	if submitErr != nil {
		return engine.State{}, nil, "", submitErr
	}
	return sess.State(), uniqueSorted(changed...), sess.DraftID(), nil
}

// openSession resumes draftID when the store already has it, after
// checking it was saved under the same rule table. Otherwise a new draft
// is started.
func openSession(ctx context.Context, st *store.Store, eng *engine.Engine, loaded *LoadResult,
	draftID string, sopts []session.Option) (*session.Session, error) {
	if draftID == "" {
		return session.New(eng, st, sopts...)
	}
	d, err := st.LoadDraft(ctx, draftID)
	if errors.Is(err, store.ErrNotFound) {
		last, err := st.LastSeq(ctx, draftID)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read event log", err)
		}
		if last == 0 {
			return session.New(eng, st, sopts...)
		}
	} else if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load draft", err)
	} else if d.RuleSetHash != loaded.Hash {
		return nil, NewExitError(ExitFailure,
			fmt.Sprintf("draft %s was saved with rule table %s (%s), not %s", draftID, d.RuleSet, short(d.RuleSetHash), short(loaded.Hash)))
	}
	sess, err := session.Resume(ctx, eng, st, draftID, sopts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resume draft", err)
	}
	return sess, nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// loadRules loads --rules, writing coded errors through f on failure.
func loadRules(f *OutputFormatter, opts *RootOptions) (*LoadResult, error) {
	loaded, err := LoadRules(opts.Rules)
	if err != nil {
		errs := RuleErrors(err)
		return nil, f.fail(ExitCommandError, errs[0].Code, errs[0].Message, errs)
	}
	f.VerboseLog("rules %q (%s)", loaded.RuleSet.Name, short(loaded.Hash))
	return loaded, nil
}
