package engine

import (
	"time"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/provenance"
	"github.com/roach88/formsync/internal/transform"
)

// work is the scratch state of one Apply call.
type work struct {
	st           State
	now          time.Time
	changed      []string
	changedPaths []fieldpath.Path
	history      *writeHistory
	passes       int
}

func newWork(s State, now time.Time) *work {
	return &work{st: s, now: now, history: newWriteHistory()}
}

func (w *work) markChanged(p fieldpath.Path) {
	w.changed = append(w.changed, p.String())
	w.changedPaths = append(w.changedPaths, p)
}

func (w *work) transition(templates []string) Transition {
	return Transition{
		State:     w.st,
		Changed:   w.changed,
		Templates: templates,
		Passes:    w.passes,
	}
}

// derive runs passes over the scoped targets and template outputs until a
// pass writes nothing.
func (e *Engine) derive(w *work, scope Scope, event string) error {
	quota := newPassQuota(e.maxPasses)
	for {
		if err := quota.Check(event); err != nil {
			e.logger.Warn("derivation did not settle", "event", event, "passes", quota.Current())
			return err
		}
		w.passes = quota.Current()

		wrote := false
		for i := range e.rules {
			cr := &e.rules[i]
			if !scope.Includes(cr.rule.Section) {
				continue
			}
			ok, err := e.deriveTarget(w, cr)
			if err != nil {
				return err
			}
			wrote = wrote || ok
		}
		for i := range e.outputs {
			out := &e.outputs[i]
			if !scope.Includes(sectionID(out.section)) {
				continue
			}
			ok, err := e.renderOutput(w, out)
			if err != nil {
				return err
			}
			wrote = wrote || ok
		}

		if !wrote {
			return nil
		}
	}
}

func sectionID(s *ir.Section) string {
	if s == nil {
		return ""
	}
	return s.ID
}

// deriveTarget evaluates one rule and reports whether it wrote.
//
// A held value is re-evaluated in two cases. A default stands in only until
// a real candidate resolves, and is otherwise kept as it is. A refresh rule
// follows its sources: when none resolves any more, the value falls back to
// the default or is cleared along with its provenance.
func (e *Engine) deriveTarget(w *work, cr *compiledRule) (bool, error) {
	key := cr.target.String()
	if w.st.Provenance.IsUser(key) {
		return false, nil
	}
	if cr.section != nil && !w.st.Fields.SectionActive(*cr.section) {
		return false, nil
	}

	cur, _ := w.st.Fields.GetPath(cr.target)
	held := !fieldpath.IsEmpty(cur)
	curTag, _ := w.st.Provenance.GetSource(key)
	standIn := held && curTag == ir.TagDefault
	refresh := held && !standIn && cr.rule.Refresh && w.st.Provenance.IsDerived(key)
	if held && !standIn && !refresh {
		return false, nil
	}

	val, tag, ok := e.resolveCandidates(w, cr)
	if !ok && !standIn {
		val, ok = e.resolveDefault(w, cr)
		tag = ir.TagDefault
	}
	if !ok {
		if refresh {
			e.logger.Debug("sources gone; clearing derived value", "target", key, "tag", curTag)
			w.st.Provenance.Clear(key)
			return e.write(w, cr.target, ir.IRNull{}, "")
		}
		e.logger.Debug("target unresolved", "target", key)
		return false, nil
	}

	if ir.Equal(cur, val) {
		w.st.Provenance.RecordSource(key, tag)
		return false, nil
	}
	return e.write(w, cr.target, val, tag)
}

// resolveCandidates walks the candidate chain and returns the first
// non-empty result with its tag.
func (e *Engine) resolveCandidates(w *work, cr *compiledRule) (ir.IRValue, string, bool) {
	for i, c := range cr.rule.Candidates {
		var src ir.IRValue
		if !cr.sources[i].IsZero() {
			v, ok := w.st.Fields.GetPath(cr.sources[i])
			if !ok || fieldpath.IsEmpty(v) {
				e.logger.Debug("candidate not available", "target", cr.rule.Target, "source", c.Source, "tag", c.Tag)
				continue
			}
			src = v
		}

		out, ok := e.registry.Apply(c.Transform, src, e.transformContext(w, c.Args))
		if !ok {
			e.logger.Debug("candidate inapplicable", "target", cr.rule.Target, "transform", c.Transform, "tag", c.Tag)
			continue
		}
		return out, c.Tag, true
	}
	return nil, "", false
}

func (e *Engine) resolveDefault(w *work, cr *compiledRule) (ir.IRValue, bool) {
	d := cr.rule.Default
	if d == nil {
		return nil, false
	}
	var src ir.IRValue
	if !cr.defaultSrc.IsZero() {
		src, _ = w.st.Fields.GetPath(cr.defaultSrc)
	}
	return e.registry.Apply(d.Transform, src, e.transformContext(w, d.Args))
}

func (e *Engine) transformContext(w *work, args ir.IRObject) transform.Context {
	return transform.Context{
		Args:     args,
		Now:      w.now,
		Store:    w.st.Fields,
		Registry: e.registry,
	}
}

// renderOutput writes a template's rendering to its output field and
// reports whether it wrote.
func (e *Engine) renderOutput(w *work, out *compiledOutput) (bool, error) {
	key := out.path.String()
	if w.st.Provenance.IsUser(key) {
		return false, nil
	}
	if out.section != nil && !w.st.Fields.SectionActive(*out.section) {
		return false, nil
	}

	r, err := e.templates.Render(out.id, w.st.Fields)
	if err != nil {
		return false, NewUnknownTemplateError(out.id, err)
	}

	cur, _ := w.st.Fields.GetPath(out.path)
	tag, tagged := w.st.Provenance.GetSource(key)
	ours := tagged && provenance.IsTemplateTag(tag)

	if r.Manual {
		// The user writes this variant. Clear our generated text once; what
		// the user types afterwards is a user edit.
		if !ours || fieldpath.IsEmpty(cur) {
			return false, nil
		}
		w.st.Provenance.Clear(key)
		return e.write(w, out.path, ir.IRString(""), "")
	}

	if !fieldpath.IsEmpty(cur) && !ours {
		return false, nil
	}

	text := ir.IRString(r.Text)
	if ir.Equal(cur, text) {
		w.st.Provenance.RecordSource(key, provenance.TemplateTag(out.id))
		return false, nil
	}
	return e.write(w, out.path, text, provenance.TemplateTag(out.id))
}

// write stores v at p and records tag. An empty tag records nothing.
func (e *Engine) write(w *work, p fieldpath.Path, v ir.IRValue, tag string) (bool, error) {
	key := p.String()
	if w.history.WouldRepeat(key, v) {
		return false, NewOscillationError(key, w.passes)
	}

	cur, _ := w.st.Fields.GetPath(p)
	next, err := w.st.Fields.SetPath(p, v)
	if err != nil {
		// A user value of the wrong shape sits on the path; the target
		// stays unresolved rather than failing the user's edit.
		e.logger.Warn("cannot write derived value", "target", key, "error", err)
		return false, nil
	}

	w.history.Record(key, cur)
	w.history.Record(key, v)
	w.st.Fields = next
	if tag != "" {
		w.st.Provenance.RecordSource(key, tag)
	}
	w.markChanged(p)
	e.logger.Info("derived", "target", key, "tag", tag, "pass", w.passes)
	return true, nil
}
