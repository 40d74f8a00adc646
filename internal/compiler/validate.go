package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/template"
	"github.com/roach88/formsync/internal/transform"
)

// Validation error codes (E100-E199)
const (
	// Rule errors (E101-E109)
	ErrUnknownTransform   = "E101" // transform not registered
	ErrInvalidPath        = "E102" // malformed field path
	ErrDuplicateTarget    = "E103" // two rules or outputs write the same field
	ErrUnknownSection     = "E104" // section not declared
	ErrDefaultOnlySource  = "E105" // default-only transform used in a from chain
	ErrInvalidArgs        = "E106" // transform args rejected
	ErrMissingSource      = "E107" // from candidate without a source path
	ErrDependencyCycle    = "E108" // rules read each other's targets
	ErrOverlappingTargets = "E109" // one target nested inside another

	// Section and template errors (E110-E119)
	ErrEmptySection       = "E110" // section without activating values
	ErrDuplicateToken     = "E111" // token bound twice in one template
	ErrUnboundToken       = "E112" // body uses a token with no binding
	ErrSelectorNoVariants = "E113" // selector without variants or vice versa
)

// ValidationError represents a rule table validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one rule table.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s):\n  %s", len(errs), strings.Join(msgs, "\n  "))
}

// Validate checks a parsed rule set against reg.
// Returns all errors found (does not fail-fast).
func Validate(rs *ir.RuleSet, reg *transform.Registry) ValidationErrors {
	var errs ValidationErrors

	sections := make(map[string]bool, len(rs.Sections))
	for _, s := range rs.Sections {
		sections[s.ID] = true
		field := "sections." + s.ID
		errs = append(errs, checkPath(field+".discriminator", s.Discriminator)...)
		if len(s.Values) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".values",
				Message: "section needs at least one activating value",
				Code:    ErrEmptySection,
			})
		}
	}

	owners := make(map[string]string)
	var owned []ownedPath
	claim := func(path, owner string) {
		if prev, dup := owners[path]; dup {
			errs = append(errs, ValidationError{
				Field:   owner,
				Message: fmt.Sprintf("field %q is already written by %s", path, prev),
				Code:    ErrDuplicateTarget,
			})
			return
		}
		owners[path] = owner
		p, err := fieldpath.Parse(path)
		if err != nil {
			return
		}
		for _, o := range owned {
			if fieldpath.Overlaps(o.path, p) {
				errs = append(errs, ValidationError{
					Field:   owner,
					Message: fmt.Sprintf("field %q overlaps %q written by %s", path, o.path.String(), o.owner),
					Code:    ErrOverlappingTargets,
				})
			}
		}
		owned = append(owned, ownedPath{path: p, owner: owner})
	}

	for _, r := range rs.Rules {
		field := "rules." + r.Target
		pathErrs := checkPath(field, r.Target)
		errs = append(errs, pathErrs...)
		if len(pathErrs) == 0 {
			claim(r.Target, field)
		}
		if r.Section != "" && !sections[r.Section] {
			errs = append(errs, unknownSection(field+".section", r.Section))
		}

		for i, c := range r.Candidates {
			cf := fmt.Sprintf("%s.from[%d]", field, i)
			errs = append(errs, checkCandidate(reg, cf, c, false)...)
		}
		if r.Default != nil {
			errs = append(errs, checkCandidate(reg, field+".default", *r.Default, true)...)
		}
	}

	for _, t := range rs.Templates {
		field := "templates." + t.ID
		if t.Section != "" && !sections[t.Section] {
			errs = append(errs, unknownSection(field+".section", t.Section))
		}
		if t.Output != "" {
			pathErrs := checkPath(field+".output", t.Output)
			errs = append(errs, pathErrs...)
			if len(pathErrs) == 0 {
				claim(t.Output, field)
			}
		}
		if t.Selector != "" {
			errs = append(errs, checkPath(field+".selector", t.Selector)...)
		}
		if (t.Selector == "") != (len(t.Variants) == 0) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "selector and variants must be declared together",
				Code:    ErrSelectorNoVariants,
			})
		}
		errs = append(errs, checkTokens(reg, field, t)...)
	}

	return errs
}

type ownedPath struct {
	path  fieldpath.Path
	owner string
}

func checkCandidate(reg *transform.Registry, field string, c ir.Candidate, isDefault bool) ValidationErrors {
	var errs ValidationErrors
	if c.Source != "" {
		errs = append(errs, checkPath(field+".source", c.Source)...)
	}

	def, ok := reg.Lookup(c.Transform)
	if !ok {
		return append(errs, ValidationError{
			Field:   field + ".transform",
			Message: fmt.Sprintf("unknown transform %q (known: %s)", c.Transform, strings.Join(reg.Names(), ", ")),
			Code:    ErrUnknownTransform,
		})
	}
	if def.DefaultOnly && !isDefault {
		errs = append(errs, ValidationError{
			Field:   field + ".transform",
			Message: fmt.Sprintf("transform %q may only be used as a rule default", c.Transform),
			Code:    ErrDefaultOnlySource,
		})
	}
	if !def.DefaultOnly && !isDefault && c.Source == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".source",
			Message: fmt.Sprintf("transform %q needs a source path", c.Transform),
			Code:    ErrMissingSource,
		})
	}
	if def.CheckArgs != nil {
		if err := def.CheckArgs(c.Args); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".args",
				Message: fmt.Sprintf("%s: %v", c.Transform, err),
				Code:    ErrInvalidArgs,
			})
		}
	}
	return errs
}

func checkTokens(reg *transform.Registry, field string, t ir.Template) ValidationErrors {
	var errs ValidationErrors
	bound := make(map[string]bool, len(t.Tokens))
	for _, b := range t.Tokens {
		tf := field + ".tokens." + b.Token
		if bound[b.Token] {
			errs = append(errs, ValidationError{
				Field:   tf,
				Message: fmt.Sprintf("token %q is bound twice", b.Token),
				Code:    ErrDuplicateToken,
			})
		}
		bound[b.Token] = true
		errs = append(errs, checkPath(tf+".path", b.Path)...)
		if b.Transform != "" {
			errs = append(errs, checkCandidate(reg, tf, ir.Candidate{
				Source:    b.Path,
				Transform: b.Transform,
				Args:      b.Args,
			}, false)...)
		}
	}

	bodies := []string{t.Body}
	for _, v := range t.Variants {
		bodies = append(bodies, v.Body)
	}
	for _, body := range bodies {
		for _, tok := range tokensIn(body) {
			if !bound[tok] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("token [%s] has no binding", tok),
					Code:    ErrUnboundToken,
				})
				bound[tok] = true
			}
		}
	}
	return errs
}

// tokensIn lists bracketed tokens in body that look like binding names:
// upper-case letters, digits and underscores. Other bracketed text is prose.
func tokensIn(body string) []string {
	var out []string
	for _, tok := range template.Tokens(body) {
		if isTokenName(tok) {
			out = append(out, tok)
		}
	}
	return out
}

func isTokenName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

func checkPath(field, raw string) ValidationErrors {
	if _, err := fieldpath.Parse(raw); err != nil {
		return ValidationErrors{{Field: field, Message: err.Error(), Code: ErrInvalidPath}}
	}
	return nil
}

func unknownSection(field, id string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("section %q is not declared", id),
		Code:    ErrUnknownSection,
	}
}
