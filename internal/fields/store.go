// Package fields holds the field store: the single flat-keyed document that
// every form reads from and writes to.
//
// A Store is immutable. Set returns a new Store that shares every container
// not on the written path, so keeping the previous Store around is cheap and
// a failed transition simply discards the new one.
package fields

import (
	"fmt"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
)

// Store is an immutable mapping from top-level keys to field values.
// The zero Store is empty and ready to use.
type Store struct {
	root ir.IRObject
}

// New returns a Store over a copy of snapshot's top level. Nested values are
// treated as immutable and shared.
func New(snapshot ir.IRObject) Store {
	if snapshot == nil {
		return Store{root: ir.IRObject{}}
	}
	return Store{root: snapshot.Clone()}
}

// Get resolves a path string. A malformed path reads as absent.
func (s Store) Get(path string) (ir.IRValue, bool) {
	p, err := fieldpath.Parse(path)
	if err != nil {
		return nil, false
	}
	return s.GetPath(p)
}

// GetPath resolves a parsed path.
func (s Store) GetPath(p fieldpath.Path) (ir.IRValue, bool) {
	return fieldpath.Get(s.root, p)
}

// IsEmpty reports whether the value at p is absent or empty.
func (s Store) IsEmpty(p fieldpath.Path) bool {
	v, _ := s.GetPath(p)
	return fieldpath.IsEmpty(v)
}

// Set parses path and writes v. Errors wrap fieldpath.ErrInvalidPath.
func (s Store) Set(path string, v ir.IRValue) (Store, error) {
	p, err := fieldpath.Parse(path)
	if err != nil {
		return s, err
	}
	return s.SetPath(p, v)
}

// SetPath returns a new Store with v written at p. On error the receiver is
// returned unchanged.
func (s Store) SetPath(p fieldpath.Path, v ir.IRValue) (Store, error) {
	if v == nil {
		v = ir.IRNull{}
	}
	root, err := fieldpath.Set(s.root, p, v)
	if err != nil {
		return s, err
	}
	return Store{root: root}, nil
}

// Snapshot returns the flat-keyed document for persistence. The top level is
// a fresh map; nested values must not be modified.
func (s Store) Snapshot() ir.IRObject {
	return s.root.Clone()
}

// Keys returns the top-level keys in canonical order.
func (s Store) Keys() []string {
	return s.root.SortedKeys()
}

// Len returns the number of top-level keys.
func (s Store) Len() int {
	return len(s.root)
}

// Hash returns the content hash of the store's snapshot.
func (s Store) Hash() (string, error) {
	h, err := ir.SnapshotHash(s.root)
	if err != nil {
		return "", fmt.Errorf("hash field store: %w", err)
	}
	return h, nil
}

// Equal reports whether two stores hold equal documents.
func (s Store) Equal(other Store) bool {
	return ir.Equal(s.root, other.root)
}

// ChangedKeys returns the top-level keys whose values differ between s and
// other, including keys present in only one of them, in canonical order.
func (s Store) ChangedKeys(other Store) []string {
	union := ir.IRObject{}
	for k := range s.root {
		union[k] = nil
	}
	for k := range other.root {
		union[k] = nil
	}

	var changed []string
	for _, k := range union.SortedKeys() {
		a, aok := s.root[k]
		b, bok := other.root[k]
		if aok != bok || !ir.Equal(a, b) {
			changed = append(changed, k)
		}
	}
	return changed
}
