// Package transform is the library of named, pure value transforms that
// derivation candidates and template tokens refer to by name.
//
// A transform never fails: when its input does not fit it reports
// ok=false ("inapplicable") and the caller moves on to the next candidate.
package transform

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
)

// Reader is the read side of a field store.
type Reader interface {
	GetPath(p fieldpath.Path) (ir.IRValue, bool)
}

// Context carries everything a transform may consult besides its source.
type Context struct {
	Args ir.IRObject
	Now  time.Time

	// Store is the field store being derived. Only transforms that read
	// additional paths (conditional_pick) use it.
	Store Reader

	// Registry resolves nested transforms named in args.
	Registry *Registry
}

// Func computes a value from src. ok=false means the transform does not
// apply to this input.
type Func func(src ir.IRValue, ctx Context) (ir.IRValue, bool)

// Def describes a registered transform.
type Def struct {
	Name string
	Fn   Func

	// DefaultOnly transforms ignore their source and may only appear as a
	// rule's default candidate.
	DefaultOnly bool

	// CheckArgs validates args at rule compile time. Nil accepts anything.
	CheckArgs func(args ir.IRObject) error

	// Reads lists field paths the transform reads through Context.Store in
	// addition to its source, for dependency ordering.
	Reads func(args ir.IRObject) []string
}

// Registry maps transform names to definitions.
type Registry struct {
	defs map[string]Def
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Def)}
}

// Default returns a new registry holding every built-in transform.
func Default() *Registry {
	r := NewRegistry()
	for _, d := range builtins() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a transform. Names must be unique.
func (r *Registry) Register(d Def) error {
	if d.Name == "" || d.Fn == nil {
		return fmt.Errorf("transform definition needs a name and a function")
	}
	if _, exists := r.defs[d.Name]; exists {
		return fmt.Errorf("transform %q already registered", d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

// Lookup returns the named transform.
func (r *Registry) Lookup(name string) (Def, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Has reports whether a transform with the given name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// Names returns all transform names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Apply runs the named transform. An unknown name is inapplicable.
func (r *Registry) Apply(name string, src ir.IRValue, ctx Context) (ir.IRValue, bool) {
	d, ok := r.defs[name]
	if !ok {
		return nil, false
	}
	if ctx.Registry == nil {
		ctx.Registry = r
	}
	out, ok := d.Fn(src, ctx)
	if !ok || fieldpath.IsEmpty(out) {
		return nil, false
	}
	return out, true
}

func builtins() []Def {
	return []Def{
		{Name: "identity", Fn: identity},
		{Name: "address_join", Fn: addressJoin, CheckArgs: checkAddressJoin},
		{Name: "list_project", Fn: listProject, CheckArgs: checkListProject},
		{Name: "conditional_pick", Fn: conditionalPick, CheckArgs: checkConditionalPick, Reads: conditionalPickReads},
		{Name: "today", Fn: today, DefaultOnly: true, CheckArgs: checkToday},
		{Name: "numeric_presence", Fn: numericPresence, CheckArgs: checkNumericPresence},
		{Name: "pick", Fn: pick, CheckArgs: checkPick},
		{Name: "join_names", Fn: joinNames},
		{Name: "map_value", Fn: mapValue, CheckArgs: checkMapValue},
		{Name: "blank_row", Fn: blankRow, DefaultOnly: true, CheckArgs: checkBlankRow},
		{Name: "literal", Fn: literal, DefaultOnly: true, CheckArgs: checkLiteral},
		{Name: "upper", Fn: upper},
		{Name: "trim", Fn: trim},
	}
}
