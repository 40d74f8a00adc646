package fieldpath

import (
	"fmt"

	"github.com/roach88/formsync/internal/ir"
)

// Get resolves p against root. Missing keys, out-of-range indexes and type
// mismatches along the way all report (nil, false); Get never fails.
func Get(root ir.IRValue, p Path) (ir.IRValue, bool) {
	if p.IsZero() {
		return nil, false
	}

	cur := root
	for _, seg := range p.segments {
		switch node := cur.(type) {
		case ir.IRObject:
			if seg.IsIndex {
				return nil, false
			}
			next, ok := node[seg.Name]
			if !ok {
				return nil, false
			}
			cur = next
		case ir.IRArray:
			if !seg.IsIndex || seg.Index >= len(node) {
				return nil, false
			}
			cur = node[seg.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set returns a copy of root with v written at p. Only the containers along
// p are copied; root itself is never modified. Missing intermediates are
// created (objects for names, arrays for indexes) and array gaps are padded
// with null. If a scalar sits where a container is needed, Set returns root
// unchanged and an error wrapping ErrInvalidPath.
func Set(root ir.IRObject, p Path, v ir.IRValue) (ir.IRObject, error) {
	if p.IsZero() {
		return root, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	out, err := setIn(root, p.segments, 0, v, p)
	if err != nil {
		return root, err
	}
	return out.(ir.IRObject), nil
}

func setIn(node ir.IRValue, segs []Segment, depth int, v ir.IRValue, full Path) (ir.IRValue, error) {
	if depth == len(segs) {
		return v, nil
	}
	seg := segs[depth]

	if seg.IsIndex {
		var arr ir.IRArray
		switch n := node.(type) {
		case nil, ir.IRNull:
		case ir.IRArray:
			arr = n
		default:
			return nil, blocked(full, depth, n)
		}

		size := len(arr)
		if seg.Index >= size {
			size = seg.Index + 1
		}
		next := make(ir.IRArray, size)
		copy(next, arr)
		for i := len(arr); i < size; i++ {
			next[i] = ir.IRNull{}
		}

		child, err := setIn(next[seg.Index], segs, depth+1, v, full)
		if err != nil {
			return nil, err
		}
		next[seg.Index] = child
		return next, nil
	}

	var obj ir.IRObject
	switch n := node.(type) {
	case nil, ir.IRNull:
		obj = ir.IRObject{}
	case ir.IRObject:
		obj = n.Clone()
	default:
		return nil, blocked(full, depth, n)
	}

	child, err := setIn(obj[seg.Name], segs, depth+1, v, full)
	if err != nil {
		return nil, err
	}
	obj[seg.Name] = child
	return obj, nil
}

func blocked(full Path, depth int, found ir.IRValue) error {
	at := Path{segments: full.segments[:depth]}
	return fmt.Errorf("%w %q: %s at %q is not a container", ErrInvalidPath, full.String(), ir.KindOf(found), at.String())
}

// IsEmpty is the single emptiness test used by derivation: nil, null, the
// empty string, an empty list and an empty object are empty. 0 and false
// are values.
func IsEmpty(v ir.IRValue) bool {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return true
	case ir.IRString:
		return val == ""
	case ir.IRArray:
		return len(val) == 0
	case ir.IRObject:
		return len(val) == 0
	default:
		return false
	}
}
