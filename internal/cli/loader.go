package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/formsync/internal/compiler"
	"github.com/roach88/formsync/internal/forms"
	"github.com/roach88/formsync/internal/ir"
)

// BuiltinRules selects the embedded patent rule table.
const BuiltinRules = "builtin"

// LoadResult is a compiled rule table and where it came from.
type LoadResult struct {
	RuleSet *ir.RuleSet
	Hash    string   // ir.RuleSetHash
	Files   []string // CUE files read; empty for the builtin table
}

// LoadError is a failure to find or read a rule table, before compilation.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadRules compiles the rule table named by path: BuiltinRules (or ""),
// a single .cue file, or a directory holding one CUE package.
//
// Errors are a *LoadError, a *compiler.CompileError, or
// compiler.ValidationErrors; RuleErrors flattens any of them.
func LoadRules(path string) (*LoadResult, error) {
	if path == "" || path == BuiltinRules {
		rs, err := forms.Builtin()
		if err != nil {
			return nil, err
		}
		return newLoadResult(rs, nil)
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules: %v", err)}
	}
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading rules: %v", err)}
		}
		rs, err := compiler.CompileSource(path, src)
		if err != nil {
			return nil, err
		}
		return newLoadResult(rs, []string{path})
	}
	return loadDir(path)
}

func loadDir(dir string) (*LoadResult, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	rs, err := compiler.Compile(value)
	if err != nil {
		return nil, err
	}
	return newLoadResult(rs, files)
}

func newLoadResult(rs *ir.RuleSet, files []string) (*LoadResult, error) {
	hash, err := ir.RuleSetHash(rs)
	if err != nil {
		return nil, err
	}
	return &LoadResult{RuleSet: rs, Hash: hash, Files: files}, nil
}

// FindCUEFiles returns the .cue files directly under dir, sorted.
// Subdirectories belong to other CUE packages and are not read.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// RuleError is one problem found while loading a rule table.
type RuleError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// RuleErrors flattens an error from LoadRules into coded entries.
func RuleErrors(err error) []RuleError {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]RuleError, len(verrs))
		for i, v := range verrs {
			out[i] = RuleError{Code: v.Code, Field: v.Field, Message: v.Message}
		}
		return out
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		re := RuleError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Field:   compileErr.Field,
			Message: compileErr.Message,
		}
		if compileErr.Pos.IsValid() {
			re.Line = compileErr.Pos.Line()
		}
		return []RuleError{re}
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		re := RuleError{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			re.Line = loadErr.Pos.Line()
		}
		return []RuleError{re}
	}
	return []RuleError{{Code: ErrCodeGeneric, Message: err.Error()}}
}

// Error code constants, shared by every command. Rule table codes E101-E113
// come from the compiler's validator.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeCUE         = "E008" // CUE evaluation error
	ErrCodeRuleTable   = "E009" // Malformed rule table structure

	ErrCodeDraftRead    = "E201" // Draft file unreadable or not an object
	ErrCodeDerive       = "E202" // Engine rejected an event
	ErrCodeStore        = "E203" // Draft store error
	ErrCodeRuleMismatch = "E204" // Draft saved under a different rule table
	ErrCodeReplay       = "E205" // Replayed hash differs from the saved snapshot
	ErrCodeTemplate     = "E206" // Unknown or inapplicable template
	ErrCodeScenarios    = "E207" // Scenario files missing or failing
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "cue":
		return ErrCodeCUE
	case "":
		return ErrCodeGeneric
	default:
		return ErrCodeRuleTable
	}
}
