// Package provenance records, per derived field, which source supplied its
// current value, and which fields the user has taken over by editing them.
package provenance

import (
	"maps"
	"slices"
	"strings"

	"github.com/roach88/formsync/internal/ir"
)

// Tracker maps target paths to source tags. A path tagged ir.TagUser is
// never re-derived until the user clears it and the entry is removed.
//
// The zero value is an empty Tracker ready to use. Tracker is not safe for
// concurrent use; the engine clones it per transition.
type Tracker struct {
	tags map[string]string
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{tags: make(map[string]string)}
}

// FromSnapshot rebuilds a Tracker from a Snapshot map.
func FromSnapshot(snap map[string]string) *Tracker {
	t := New()
	for path, tag := range snap {
		if tag != "" {
			t.tags[path] = tag
		}
	}
	return t
}

// RecordSource records that tag supplied the value at path. It does not
// override a user edit.
func (t *Tracker) RecordSource(path, tag string) {
	if t.tags[path] == ir.TagUser {
		return
	}
	t.init()
	t.tags[path] = tag
}

// MarkUserEdited tags path as user-owned.
func (t *Tracker) MarkUserEdited(path string) {
	t.init()
	t.tags[path] = ir.TagUser
}

func (t *Tracker) init() {
	if t.tags == nil {
		t.tags = make(map[string]string)
	}
}

// GetSource returns the tag for path; ok is false when nothing is recorded.
func (t *Tracker) GetSource(path string) (string, bool) {
	tag, ok := t.tags[path]
	return tag, ok
}

// IsUser reports whether the user owns path.
func (t *Tracker) IsUser(path string) bool {
	return t.tags[path] == ir.TagUser
}

// IsDerived reports whether path holds a rule- or template-supplied value.
func (t *Tracker) IsDerived(path string) bool {
	tag, ok := t.tags[path]
	return ok && tag != ir.TagUser
}

// Clear removes the entry for path, re-enabling derivation.
func (t *Tracker) Clear(path string) {
	delete(t.tags, path)
}

// Reset removes every entry.
func (t *Tracker) Reset() {
	clear(t.tags)
}

// Len returns the number of recorded paths.
func (t *Tracker) Len() int {
	return len(t.tags)
}

// Paths returns recorded paths in sorted order.
func (t *Tracker) Paths() []string {
	return slices.Sorted(maps.Keys(t.tags))
}

// Snapshot returns a copy of the path -> tag map.
func (t *Tracker) Snapshot() map[string]string {
	return maps.Clone(t.tags)
}

// Clone returns an independent copy.
func (t *Tracker) Clone() *Tracker {
	return &Tracker{tags: maps.Clone(t.tags)}
}

// Equal reports whether two trackers hold the same entries.
func (t *Tracker) Equal(other *Tracker) bool {
	return maps.Equal(t.tags, other.tags)
}

// TemplateTag returns the tag recorded for a template's output field.
func TemplateTag(templateID string) string {
	return ir.TagTemplatePrefix + templateID
}

// IsTemplateTag reports whether tag was recorded by a template.
func IsTemplateTag(tag string) bool {
	return strings.HasPrefix(tag, ir.TagTemplatePrefix)
}
