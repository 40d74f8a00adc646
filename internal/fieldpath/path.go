// Package fieldpath parses and resolves field paths such as
// "applicants[0].address.email" against a field store's value tree.
//
// Grammar:
//
//	path    = segment ("." segment)*
//	segment = name ("[" index "]")*
//	name    = [A-Za-z_][A-Za-z0-9_-]*
//	index   = decimal integer >= 0
//
// Paths are structural: a dot always descends into an object, so a store key
// cannot itself contain a dot.
package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is wrapped by every error caused by a malformed path or by a
// Set that would have to descend through a scalar.
var ErrInvalidPath = errors.New("invalid path")

// MaxIndex bounds array indexes so a typo cannot allocate a huge list.
const MaxIndex = 1 << 16

// Segment is one step of a path: an object key or an array index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Name
}

// Path is a parsed field path. The zero Path is invalid.
type Path struct {
	segments []Segment
}

// Parse parses a path string. Errors wrap ErrInvalidPath.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, invalid(raw, "empty path")
	}

	var segments []Segment
	for _, part := range strings.Split(raw, ".") {
		if part == "" {
			return Path{}, invalid(raw, "empty segment")
		}

		name, rest := part, ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, rest = part[:i], part[i:]
		}
		if !isValidName(name) {
			return Path{}, invalid(raw, fmt.Sprintf("invalid name %q", name))
		}
		segments = append(segments, Segment{Name: name})

		for rest != "" {
			if rest[0] != '[' {
				return Path{}, invalid(raw, fmt.Sprintf("unexpected %q after index", rest))
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return Path{}, invalid(raw, "unterminated index")
			}
			idx, err := parseIndex(rest[1:end])
			if err != nil {
				return Path{}, invalid(raw, err.Error())
			}
			segments = append(segments, Segment{Index: idx, IsIndex: true})
			rest = rest[end+1:]
		}
	}

	return Path{segments: segments}, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for paths known at compile time.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// IsZero reports whether p is the zero Path.
func (p Path) IsZero() bool {
	return len(p.segments) == 0
}

// Segments returns a copy of the path's segments.
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Key returns the top-level store key the path starts at.
func (p Path) Key() string {
	if p.IsZero() {
		return ""
	}
	return p.segments[0].Name
}

// String returns the canonical text of the path. Index leading zeros are
// dropped, so Parse("a[01]").String() == "a[1]".
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p.segments {
		if i > 0 && !seg.IsIndex {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if prefix.IsZero() || len(prefix.segments) > len(p.segments) {
		return false
	}
	for i, seg := range prefix.segments {
		if p.segments[i] != seg {
			return false
		}
	}
	return true
}

// Equal reports whether two paths address the same location.
func (p Path) Equal(other Path) bool {
	return len(p.segments) == len(other.segments) && p.HasPrefix(other)
}

// Overlaps reports whether a change at one path can affect the value at the
// other, i.e. one is a prefix of the other.
func Overlaps(a, b Path) bool {
	return a.HasPrefix(b) || b.HasPrefix(a)
}

func invalid(raw, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidPath, raw, reason)
}

func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty index")
	}
	for _, r := range s {
		if !isDigit(r) {
			return 0, fmt.Errorf("non-numeric index %q", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > MaxIndex {
		return 0, fmt.Errorf("index %s exceeds %d", s, MaxIndex)
	}
	return n, nil
}

func isValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !isLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !isLetter(r) && !isDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
