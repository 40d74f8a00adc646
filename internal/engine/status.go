package engine

import (
	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
)

// Statuses reports, for every rule target and template output, how it
// stands in s.
func (e *Engine) Statuses(s State) map[string]ir.Status {
	out := make(map[string]ir.Status, len(e.rules)+len(e.outputs))
	for _, cr := range e.rules {
		out[cr.target.String()] = e.status(s, cr.target, cr.section)
	}
	for _, o := range e.outputs {
		out[o.path.String()] = e.status(s, o.path, o.section)
	}
	return out
}

func (e *Engine) status(s State, p fieldpath.Path, section *ir.Section) ir.Status {
	key := p.String()
	if s.Provenance != nil && s.Provenance.IsUser(key) {
		return ir.StatusUser
	}
	if section != nil && !s.Fields.SectionActive(*section) {
		return ir.StatusNotApplicable
	}
	if s.Fields.IsEmpty(p) {
		return ir.StatusUnresolved
	}

	var tag string
	var ok bool
	if s.Provenance != nil {
		tag, ok = s.Provenance.GetSource(key)
	}
	switch {
	case !ok:
		return ir.StatusPresent
	case tag == ir.TagDefault:
		return ir.StatusDefault
	default:
		return ir.StatusDerived
	}
}
