package engine

import "github.com/roach88/formsync/internal/ir"

// writeHistory records every value written to each path during one
// transition. A write only happens when the new value differs from the
// current one, so writing a value the path already held earlier means two
// rules (or a rule and a template) are fighting over it.
//
// The pass quota alone would eventually stop such a loop; the history names
// the path at fault on the first repeat.
type writeHistory struct {
	seen map[string]map[string]bool // map[path]map[canonical value]bool
}

func newWriteHistory() *writeHistory {
	return &writeHistory{seen: make(map[string]map[string]bool)}
}

// WouldRepeat reports whether path already held v earlier in this transition.
func (h *writeHistory) WouldRepeat(path string, v ir.IRValue) bool {
	key, ok := valueKey(v)
	if !ok {
		return false
	}
	return h.seen[path][key]
}

// Record notes that path held v.
func (h *writeHistory) Record(path string, v ir.IRValue) {
	key, ok := valueKey(v)
	if !ok {
		return
	}
	if h.seen[path] == nil {
		h.seen[path] = make(map[string]bool)
	}
	h.seen[path][key] = true
}

func valueKey(v ir.IRValue) (string, bool) {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
