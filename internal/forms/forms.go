// Package forms embeds the built-in patent rule table.
package forms

import (
	_ "embed"

	"github.com/roach88/formsync/internal/compiler"
	"github.com/roach88/formsync/internal/ir"
)

// PatentFile is the name error positions use for the embedded table.
const PatentFile = "patent.cue"

//go:embed patent.cue
var patentSource []byte

// Source returns the CUE text of the built-in table.
func Source() []byte {
	out := make([]byte, len(patentSource))
	copy(out, patentSource)
	return out
}

// Builtin compiles the built-in patent rule table. Each call returns a fresh
// rule set.
func Builtin(opts ...compiler.Option) (*ir.RuleSet, error) {
	return compiler.CompileSource(PatentFile, patentSource, opts...)
}

// MustBuiltin is like Builtin but panics on error.
func MustBuiltin() *ir.RuleSet {
	rs, err := Builtin()
	if err != nil {
		panic(err)
	}
	return rs
}
