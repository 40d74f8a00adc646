package fields

import (
	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
)

// SectionActive reports whether sec's discriminator currently holds one of
// its activating values. Values match when equal, or when both render to the
// same non-empty text (a form posting "1" activates a section declared with
// 1). A missing or malformed discriminator leaves the section inactive.
func (s Store) SectionActive(sec ir.Section) bool {
	p, err := fieldpath.Parse(sec.Discriminator)
	if err != nil {
		return false
	}
	got, ok := s.GetPath(p)
	if !ok || fieldpath.IsEmpty(got) {
		return false
	}
	for _, want := range sec.Values {
		if ir.Equal(got, want) {
			return true
		}
		if text := ir.Text(got); text != "" && text == ir.Text(want) {
			return true
		}
	}
	return false
}
