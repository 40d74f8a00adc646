// Package compiler turns CUE rule tables into validated rule sets whose
// rules are in evaluation order.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/template"
	"github.com/roach88/formsync/internal/transform"
)

// Option configures compilation.
type Option func(*config)

type config struct {
	registry *transform.Registry
}

// WithRegistry validates transform names and args against reg instead of
// transform.Default().
func WithRegistry(reg *transform.Registry) Option {
	return func(c *config) {
		c.registry = reg
	}
}

// CompileSource compiles one CUE document holding a rule table.
//
// filename is used only for error positions.
func CompileSource(filename string, src []byte, opts ...Option) (*ir.RuleSet, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return Compile(v, opts...)
}

// Compile turns a CUE rule table into a validated rule set whose rules are
// in evaluation order.
//
// The value is the table itself:
//
//	name: "patent"
//	sections: convention: {discriminator: "form1_application_type", values: ["convention"]}
//	rules: form3_applicant_name: from: [
//		{source: "form6_assignee_name", tag: "form6"},
//		{source: "applicants[0].name", tag: "form1"},
//	]
//	templates: form6_transfer: {body: "...", tokens: APPLICANT: "form2_applicant_name"}
func Compile(v cue.Value, opts ...Option) (*ir.RuleSet, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.registry == nil {
		cfg.registry = transform.Default()
	}

	rs, err := Parse(v)
	if err != nil {
		return nil, err
	}
	if errs := Validate(rs, cfg.registry); len(errs) > 0 {
		return nil, errs
	}

	ordered, err := Order(rs, cfg.registry)
	if err != nil {
		return nil, err
	}
	rs.Rules = ordered
	return rs, nil
}

// Parse extracts a rule set from CUE without validating or ordering it.
// Paths are rewritten to their canonical form and missing token
// placeholders are filled in.
func Parse(v cue.Value) (*ir.RuleSet, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rs := &ir.RuleSet{}
	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		rs.Name = name
	}

	var err error
	if rs.Sections, err = parseSections(v); err != nil {
		return nil, err
	}
	if rs.Rules, err = parseRules(v); err != nil {
		return nil, err
	}
	if rs.Templates, err = parseTemplates(v); err != nil {
		return nil, err
	}
	if len(rs.Rules) == 0 && len(rs.Templates) == 0 {
		return nil, &CompileError{
			Field:   "rules",
			Message: "rule table declares no rules and no templates",
			Pos:     v.Pos(),
		}
	}
	return rs, nil
}

func parseSections(v cue.Value) ([]ir.Section, error) {
	var sections []ir.Section
	err := eachField(v, "sections", func(id string, sv cue.Value) error {
		sec := ir.Section{ID: id}
		var err error
		if sec.Title, err = optionalString(sv, "title"); err != nil {
			return err
		}
		if sec.Discriminator, err = requiredPath(sv, "discriminator", "sections."+id); err != nil {
			return err
		}

		valuesVal := sv.LookupPath(cue.ParsePath("values"))
		if !valuesVal.Exists() {
			return &CompileError{
				Field:   fmt.Sprintf("sections.%s.values", id),
				Message: "activating values are required",
				Pos:     sv.Pos(),
			}
		}
		values, err := toIR(valuesVal)
		if err != nil {
			return err
		}
		arr, ok := values.(ir.IRArray)
		if !ok || len(arr) == 0 {
			return &CompileError{
				Field:   fmt.Sprintf("sections.%s.values", id),
				Message: "must be a non-empty list",
				Pos:     valuesVal.Pos(),
			}
		}
		sec.Values = arr
		sections = append(sections, sec)
		return nil
	})
	return sections, err
}

func parseRules(v cue.Value) ([]ir.Rule, error) {
	var rules []ir.Rule
	err := eachField(v, "rules", func(label string, rv cue.Value) error {
		target, err := canonicalPath(label, "rules."+label, rv.Pos())
		if err != nil {
			return err
		}
		rule := ir.Rule{Target: target}
		field := "rules." + label

		if rule.Form, err = optionalString(rv, "form"); err != nil {
			return err
		}
		if rule.Section, err = optionalString(rv, "section"); err != nil {
			return err
		}
		if refreshVal := rv.LookupPath(cue.ParsePath("refresh")); refreshVal.Exists() {
			if rule.Refresh, err = refreshVal.Bool(); err != nil {
				return formatCUEError(err)
			}
		}

		if fromVal := rv.LookupPath(cue.ParsePath("from")); fromVal.Exists() {
			iter, err := fromVal.List()
			if err != nil {
				return formatCUEError(err)
			}
			for i := 0; iter.Next(); i++ {
				c, err := parseCandidate(iter.Value(), fmt.Sprintf("%s.from[%d]", field, i))
				if err != nil {
					return err
				}
				if c.Tag == "" {
					c.Tag = rule.Form
				}
				rule.Candidates = append(rule.Candidates, c)
			}
		}

		if defVal := rv.LookupPath(cue.ParsePath("default")); defVal.Exists() {
			c, err := parseCandidate(defVal, field+".default")
			if err != nil {
				return err
			}
			c.Tag = ir.TagDefault
			rule.Default = &c
		}

		if len(rule.Candidates) == 0 && rule.Default == nil {
			return &CompileError{
				Field:   field,
				Message: "rule needs at least one from candidate or a default",
				Pos:     rv.Pos(),
			}
		}
		rules = append(rules, rule)
		return nil
	})
	return rules, err
}

// parseCandidate accepts a bare source path (identity transform) or a struct
// {source?, transform?, args?, tag?}.
func parseCandidate(v cue.Value, field string) (ir.Candidate, error) {
	if s, err := v.String(); err == nil {
		src, err := canonicalPath(s, field, v.Pos())
		if err != nil {
			return ir.Candidate{}, err
		}
		return ir.Candidate{Source: src, Transform: "identity"}, nil
	}

	var c ir.Candidate
	var err error
	if c.Source, err = optionalString(v, "source"); err != nil {
		return c, err
	}
	if c.Source != "" {
		if c.Source, err = canonicalPath(c.Source, field+".source", v.Pos()); err != nil {
			return c, err
		}
	}
	if c.Transform, err = optionalString(v, "transform"); err != nil {
		return c, err
	}
	if c.Transform == "" {
		c.Transform = "identity"
	}
	if c.Tag, err = optionalString(v, "tag"); err != nil {
		return c, err
	}
	if c.Args, err = optionalObject(v, "args", field+".args"); err != nil {
		return c, err
	}
	return c, nil
}

func parseTemplates(v cue.Value) ([]ir.Template, error) {
	var templates []ir.Template
	err := eachField(v, "templates", func(id string, tv cue.Value) error {
		field := "templates." + id
		t := ir.Template{ID: id}
		var err error

		if t.Section, err = optionalString(tv, "section"); err != nil {
			return err
		}
		if t.Body, err = optionalString(tv, "body"); err != nil {
			return err
		}
		if t.Output, err = optionalPath(tv, "output", field); err != nil {
			return err
		}
		if t.Selector, err = optionalPath(tv, "selector", field); err != nil {
			return err
		}

		err = eachField(tv, "variants", func(name string, vv cue.Value) error {
			variant := ir.Variant{Name: name}
			if s, err := vv.String(); err == nil {
				variant.Body = s
			} else {
				if variant.Body, err = optionalString(vv, "body"); err != nil {
					return err
				}
				if m := vv.LookupPath(cue.ParsePath("manual")); m.Exists() {
					if variant.Manual, err = m.Bool(); err != nil {
						return formatCUEError(err)
					}
				}
			}
			if variant.Manual && variant.Body != "" {
				return &CompileError{
					Field:   fmt.Sprintf("%s.variants.%s", field, name),
					Message: "a manual variant has no body",
					Pos:     vv.Pos(),
				}
			}
			t.Variants = append(t.Variants, variant)
			return nil
		})
		if err != nil {
			return err
		}

		err = eachField(tv, "tokens", func(token string, bv cue.Value) error {
			b, err := parseToken(token, bv, fmt.Sprintf("%s.tokens.%s", field, token))
			if err != nil {
				return err
			}
			t.Tokens = append(t.Tokens, b)
			return nil
		})
		if err != nil {
			return err
		}

		if t.Body == "" && len(t.Variants) == 0 {
			return &CompileError{
				Field:   field,
				Message: "template needs a body or variants",
				Pos:     tv.Pos(),
			}
		}
		templates = append(templates, t)
		return nil
	})
	return templates, err
}

// parseToken accepts a bare path or {path, transform?, args?, placeholder?}.
func parseToken(token string, v cue.Value, field string) (ir.TokenBinding, error) {
	b := ir.TokenBinding{Token: token}
	if s, err := v.String(); err == nil {
		if b.Path, err = canonicalPath(s, field, v.Pos()); err != nil {
			return b, err
		}
	} else {
		if b.Path, err = requiredPath(v, "path", field); err != nil {
			return b, err
		}
		if b.Transform, err = optionalString(v, "transform"); err != nil {
			return b, err
		}
		if b.Args, err = optionalObject(v, "args", field+".args"); err != nil {
			return b, err
		}
		if b.Placeholder, err = optionalString(v, "placeholder"); err != nil {
			return b, err
		}
	}
	if b.Placeholder == "" {
		b.Placeholder = "[" + template.DefaultToken(b.Path) + "]"
	}
	return b, nil
}

// eachField calls fn for every regular field of v.name, in declaration order.
// A missing struct is not an error.
func eachField(v cue.Value, name string, fn func(label string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func optionalString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalPath(v cue.Value, name, field string) (string, error) {
	s, err := optionalString(v, name)
	if err != nil || s == "" {
		return s, err
	}
	return canonicalPath(s, field+"."+name, v.LookupPath(cue.ParsePath(name)).Pos())
}

func requiredPath(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return canonicalPath(s, field+"."+name, fv.Pos())
}

func optionalObject(v cue.Value, name, field string) (ir.IRObject, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil, nil
	}
	val, err := toIR(fv)
	if err != nil {
		return nil, err
	}
	obj, ok := val.(ir.IRObject)
	if !ok {
		return nil, &CompileError{Field: field, Message: "must be a struct", Pos: fv.Pos()}
	}
	return obj, nil
}

func canonicalPath(raw, field string, pos token.Pos) (string, error) {
	p, err := fieldpath.Parse(raw)
	if err != nil {
		return "", &CompileError{Field: field, Message: err.Error(), Pos: pos, err: err}
	}
	return p.String(), nil
}

// toIR converts a concrete CUE value to an IR value. Floats are forbidden.
func toIR(v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for iter.Next() {
			elem, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Selector().Unquoted()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden, use int or string",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos

	err error
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap exposes fieldpath.ErrInvalidPath for path errors.
func (e *CompileError) Unwrap() error {
	return e.err
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: strings.TrimSpace(first.Error()),
			Pos:     positions[0],
		}
	}
	return err
}

// IsCompileError reports whether err carries a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
