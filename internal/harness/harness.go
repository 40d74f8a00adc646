package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/formsync/internal/compiler"
	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/forms"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/session"
	"github.com/roach88/formsync/internal/store"
)

// Run executes a scenario and returns its result. An error means the
// scenario could not be run at all: its rules did not compile or a step was
// rejected by the engine. Failed expectations are reported in the result.
//
// Each run uses a fresh in-memory draft store.
func Run(sc *Scenario) (*Result, error) {
	return RunContext(context.Background(), sc)
}

// RunContext is Run with a caller context.
func RunContext(ctx context.Context, sc *Scenario) (*Result, error) {
	rs, err := LoadRules(sc.Rules)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return sc.now }
	eng, err := engine.New(rs, engine.WithLogger(logger), engine.WithNow(now))
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	sess, err := session.New(eng, st,
		session.WithAutosaveInterval(0),
		session.WithDraftIDGenerator(session.NewFixedGenerator(sc.DraftID)),
		session.WithLogger(logger),
		session.WithNow(now),
	)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()
	stop := func() error {
		sess.Close()
		return <-done
	}

	result := NewResult()
	if err := runSteps(ctx, sc, eng, sess, result); err != nil {
		stop()
		return nil, err
	}
	if err := stop(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	final := sess.State()
	result.Final = final
	if result.Hash, err = final.Fields.Hash(); err != nil {
		return nil, err
	}

	var last *TraceEvent
	if n := len(result.Trace); n > 0 {
		last = &result.Trace[n-1]
	}
	for _, msg := range checkExpect("expect", sc.Expect, eng, final, last) {
		result.AddError(msg)
	}

	if err := verifyReplay(ctx, eng, st, sc.DraftID, result); err != nil {
		return nil, err
	}
	return result, nil
}

func runSteps(ctx context.Context, sc *Scenario, eng *engine.Engine, sess *session.Session, result *Result) error {
	initial, err := toObject(sc.Initial)
	if err != nil {
		return fmt.Errorf("initial: %w", err)
	}
	if _, err := apply(ctx, sess, engine.EventLoad{Snapshot: initial}, "", result); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	for i, step := range sc.Steps {
		ev, path, err := step.event()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		te, err := apply(ctx, sess, ev, path, result)
		if err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Kind(), err)
		}
		if step.Expect != nil {
			label := fmt.Sprintf("steps[%d]", i)
			for _, msg := range checkExpect(label, *step.Expect, eng, sess.State(), te) {
				result.AddError(msg)
			}
		}
	}
	return nil
}

func apply(ctx context.Context, sess *session.Session, ev engine.Event, path string, result *Result) (*TraceEvent, error) {
	t, err := sess.Submit(ctx, ev)
	if err != nil {
		return nil, err
	}
	result.Trace = append(result.Trace, TraceEvent{
		Seq:       sess.Seq(),
		Kind:      ev.Kind(),
		Path:      path,
		Changed:   nonNil(t.Changed),
		Templates: nonNil(t.Templates),
		Passes:    t.Passes,
	})
	return &result.Trace[len(result.Trace)-1], nil
}

// verifyReplay rebuilds the draft from its stored event log and checks that
// it reaches the live hash.
func verifyReplay(ctx context.Context, eng *engine.Engine, st *store.Store, draftID string, result *Result) error {
	records, err := st.ReadEvents(ctx, draftID, 0)
	if err != nil {
		return err
	}
	log, err := session.LoadLog(records)
	if err != nil {
		return err
	}
	replayed, ok, err := eng.VerifyReplay(log, result.Hash)
	if err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
		return nil
	}
	if !ok {
		got, _ := replayed.Fields.Hash()
		result.AddError(fmt.Sprintf("replay: hash %s, live %s", got, result.Hash))
	}
	return nil
}

func (s Step) event() (engine.Event, string, error) {
	switch s.Kind() {
	case StepSet:
		v, err := ir.FromAny(s.Set.Value)
		if err != nil {
			return nil, "", fmt.Errorf("set %s: %w", s.Set.Path, err)
		}
		return engine.EventFieldChange{Path: s.Set.Path, Value: v}, s.Set.Path, nil
	case StepActivate:
		return engine.EventSectionActivated{SectionID: s.Activate}, s.Activate, nil
	case StepMarkUser:
		return engine.EventMarkUserEdited{Path: s.MarkUser}, s.MarkUser, nil
	case StepReset:
		obj, err := toObject(s.Reset)
		if err != nil {
			return nil, "", fmt.Errorf("reset: %w", err)
		}
		return engine.EventReset{Snapshot: obj}, "", nil
	case StepLoad:
		obj, err := toObject(s.Load)
		if err != nil {
			return nil, "", fmt.Errorf("load: %w", err)
		}
		return engine.EventLoad{Snapshot: obj}, "", nil
	default:
		return nil, "", fmt.Errorf("step carries no single event")
	}
}

// LoadRules compiles the rule table a scenario names.
func LoadRules(path string) (*ir.RuleSet, error) {
	if path == "" || path == BuiltinRules {
		return forms.Builtin()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	rs, err := compiler.CompileSource(path, src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules %s: %w", path, err)
	}
	return rs, nil
}

func toObject(m map[string]any) (ir.IRObject, error) {
	v, err := ir.FromAny(m)
	if err != nil {
		return nil, err
	}
	obj, _ := v.(ir.IRObject)
	return obj, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
