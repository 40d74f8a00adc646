package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/fields"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/provenance"
	"github.com/roach88/formsync/internal/template"
	"github.com/roach88/formsync/internal/transform"
)

// State is everything the engine derives from and into. Fields is
// immutable; Provenance is cloned by Apply before any change.
type State struct {
	Fields     fields.Store
	Provenance *provenance.Tracker
}

// NewState returns an empty state.
func NewState() State {
	return State{Provenance: provenance.New()}
}

// Clone returns a state whose tracker can be modified independently.
func (s State) Clone() State {
	prov := s.Provenance
	if prov == nil {
		prov = provenance.New()
	}
	return State{Fields: s.Fields, Provenance: prov.Clone()}
}

// Transition is the result of applying one event.
type Transition struct {
	State State

	// Changed lists every path written, in write order. A field edit's own
	// path comes first.
	Changed []string

	// Templates lists, in declaration order, the templates whose rendering
	// may differ after this event.
	Templates []string

	// Passes is the number of derivation passes run.
	Passes int
}

type compiledRule struct {
	rule       ir.Rule
	target     fieldpath.Path
	sources    []fieldpath.Path // parallel to rule.Candidates
	defaultSrc fieldpath.Path
	section    *ir.Section
}

type compiledOutput struct {
	id      string
	path    fieldpath.Path
	section *ir.Section
}

// Engine applies events against one compiled rule set. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	ruleSet   *ir.RuleSet
	rules     []compiledRule
	outputs   []compiledOutput
	templates *template.Engine
	registry  *transform.Registry
	owned     []fieldpath.Path // rule targets and template outputs

	maxPasses int
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxPasses sets the pass quota per transition.
//
// Default: 8 passes (DefaultMaxPasses)
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		e.maxPasses = n
	}
}

// WithNow sets the clock used for date defaults.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTransforms replaces the transform registry. Default: transform.Default().
func WithTransforms(r *transform.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// New creates an Engine for rs. Rules must already be in dependency order,
// which the compiler guarantees.
func New(rs *ir.RuleSet, opts ...Option) (*Engine, error) {
	e := &Engine{
		ruleSet:   rs,
		maxPasses: DefaultMaxPasses,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = transform.Default()
	}

	for _, r := range rs.Rules {
		cr, err := e.compileRule(r)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, cr)
		e.owned = append(e.owned, cr.target)
	}

	tpl, err := template.New(rs, e.registry)
	if err != nil {
		return nil, err
	}
	e.templates = tpl

	for _, t := range rs.Templates {
		if t.Output == "" {
			continue
		}
		p, err := fieldpath.Parse(t.Output)
		if err != nil {
			return nil, fmt.Errorf("template %q output: %w", t.ID, err)
		}
		out := compiledOutput{id: t.ID, path: p}
		if t.Section != "" {
			sec, _ := rs.Section(t.Section)
			out.section = &sec
		}
		e.outputs = append(e.outputs, out)
		e.owned = append(e.owned, p)
	}
	return e, nil
}

func (e *Engine) compileRule(r ir.Rule) (compiledRule, error) {
	target, err := fieldpath.Parse(r.Target)
	if err != nil {
		return compiledRule{}, fmt.Errorf("rule %q: %w", r.Target, err)
	}
	cr := compiledRule{rule: r, target: target}

	for i, c := range r.Candidates {
		var p fieldpath.Path
		if c.Source != "" {
			p, err = fieldpath.Parse(c.Source)
			if err != nil {
				return compiledRule{}, fmt.Errorf("rule %q candidate %d: %w", r.Target, i, err)
			}
		}
		cr.sources = append(cr.sources, p)
	}
	if r.Default != nil && r.Default.Source != "" {
		cr.defaultSrc, err = fieldpath.Parse(r.Default.Source)
		if err != nil {
			return compiledRule{}, fmt.Errorf("rule %q default: %w", r.Target, err)
		}
	}
	if r.Section != "" {
		sec, ok := e.ruleSet.Section(r.Section)
		if !ok {
			return compiledRule{}, fmt.Errorf("rule %q: unknown section %q", r.Target, r.Section)
		}
		cr.section = &sec
	}
	return cr, nil
}

// RuleSet returns the rule set the engine was built from.
func (e *Engine) RuleSet() *ir.RuleSet {
	return e.ruleSet
}

// Templates returns the template engine, for hosts that render on demand.
func (e *Engine) Templates() *template.Engine {
	return e.templates
}

// Render renders one template against a state.
func (e *Engine) Render(id string, s State) (template.Rendering, error) {
	r, err := e.templates.Render(id, s.Fields)
	if err != nil {
		return template.Rendering{}, NewUnknownTemplateError(id, err)
	}
	return r, nil
}

// Apply applies ev to s and returns the resulting transition. s is never
// modified; on error the caller should keep s.
func (e *Engine) Apply(s State, ev Event) (Transition, error) {
	return e.ApplyAt(s, ev, e.now())
}

// ApplyAt is Apply with an explicit clock reading for date defaults. Replay
// uses it to reproduce the dates recorded with each event.
func (e *Engine) ApplyAt(s State, ev Event, now time.Time) (Transition, error) {
	w := newWork(s.Clone(), now)

	switch ev := ev.(type) {
	case EventLoad:
		w.st = State{Fields: fields.New(ev.Snapshot), Provenance: provenance.FromSnapshot(ev.Provenance)}
		if err := e.derive(w, ScopeAll(), ev.Kind()); err != nil {
			return Transition{}, err
		}
		return w.transition(e.templates.IDs()), nil

	case EventReset:
		w.st = State{Fields: fields.New(ev.Snapshot), Provenance: provenance.New()}
		if err := e.derive(w, ScopeAll(), ev.Kind()); err != nil {
			return Transition{}, err
		}
		return w.transition(e.templates.IDs()), nil

	case EventFieldChange:
		p, err := fieldpath.Parse(ev.Path)
		if err != nil {
			return Transition{}, NewInvalidPathError(ev.Path, err)
		}
		if err := e.applyEdit(w, p, ev.Value); err != nil {
			return Transition{}, err
		}
		if err := e.derive(w, ScopeAll(), ev.Kind()); err != nil {
			return Transition{}, err
		}
		return w.transition(e.templates.Affected(w.changedPaths)), nil

	case EventSectionActivated:
		if _, ok := e.ruleSet.Section(ev.SectionID); !ok {
			return Transition{}, NewUnknownSectionError(ev.SectionID)
		}
		if err := e.derive(w, ScopeSection(ev.SectionID), ev.Kind()); err != nil {
			return Transition{}, err
		}
		ids := e.sectionTemplates(ev.SectionID)
		ids = mergeIDs(e.templates.IDs(), ids, e.templates.Affected(w.changedPaths))
		return w.transition(ids), nil

	case EventMarkUserEdited:
		p, err := fieldpath.Parse(ev.Path)
		if err != nil {
			return Transition{}, NewInvalidPathError(ev.Path, err)
		}
		w.st.Provenance.MarkUserEdited(p.String())
		return w.transition(nil), nil

	default:
		return Transition{}, &RuntimeError{
			Code:    ErrCodeUnknownEvent,
			Message: fmt.Sprintf("unsupported event %T", ev),
		}
	}
}

// applyEdit writes a user edit and updates provenance for every owned path
// the edit touches: at, below or above the edited path. An owned path left
// non-empty becomes the user's; one left empty has its entry removed so
// derivation can fill it again in this same transition.
func (e *Engine) applyEdit(w *work, p fieldpath.Path, v ir.IRValue) error {
	next, err := w.st.Fields.SetPath(p, v)
	if err != nil {
		return NewInvalidPathError(p.String(), err)
	}
	w.st.Fields = next
	w.markChanged(p)

	for _, owned := range e.owned {
		if !fieldpath.Overlaps(owned, p) {
			continue
		}
		key := owned.String()
		if w.st.Fields.IsEmpty(owned) {
			w.st.Provenance.Clear(key)
			e.logger.Debug("user cleared derived field", "path", key)
			continue
		}
		w.st.Provenance.MarkUserEdited(key)
		e.logger.Debug("user took over field", "path", key)
	}
	return nil
}

func (e *Engine) sectionTemplates(id string) []string {
	var ids []string
	for _, t := range e.ruleSet.Templates {
		if t.Section == id {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// mergeIDs returns the members of the given sets in the order of all.
func mergeIDs(all []string, sets ...[]string) []string {
	want := make(map[string]bool)
	for _, set := range sets {
		for _, id := range set {
			want[id] = true
		}
	}
	var out []string
	for _, id := range all {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}
