// Package template renders statement templates: bodies with bracketed tokens
// such as "[APPLICANT NAME]" bound to field paths.
//
// A token whose field is empty keeps its placeholder text, so a partially
// filled statement still reads as a draft. Re-rendering is driven by each
// template's dependency set; see Dependencies and Affected.
package template

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/fields"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/transform"
)

// ErrUnknownTemplate is returned for template IDs that were never registered.
var ErrUnknownTemplate = errors.New("unknown template")

// Rendering is the result of rendering one template against a store.
type Rendering struct {
	ID   string
	Text string

	// Variant is the selected variant name, empty for the base body.
	Variant string

	// Applicable is false when the template's section is inactive; Text is
	// then empty and must not be shown.
	Applicable bool

	// Manual is true when the selected variant is written by the user.
	Manual bool

	// Missing lists bound paths that still show their placeholder.
	Missing []string
}

type boundToken struct {
	binding ir.TokenBinding
	path    fieldpath.Path
}

type compiled struct {
	tpl      ir.Template
	section  *ir.Section
	selector fieldpath.Path
	tokens   map[string]boundToken
	deps     []fieldpath.Path
}

// Engine renders the templates of one rule set.
type Engine struct {
	byID     map[string]*compiled
	order    []string
	registry *transform.Registry
}

// New prepares every template in rs. Paths were validated by the compiler;
// a malformed one here is still reported rather than ignored.
func New(rs *ir.RuleSet, reg *transform.Registry) (*Engine, error) {
	if reg == nil {
		reg = transform.Default()
	}
	e := &Engine{byID: make(map[string]*compiled), registry: reg}

	for _, tpl := range rs.Templates {
		c := &compiled{tpl: tpl, tokens: make(map[string]boundToken, len(tpl.Tokens))}

		if tpl.Section != "" {
			sec, ok := rs.Section(tpl.Section)
			if !ok {
				return nil, fmt.Errorf("template %q: unknown section %q", tpl.ID, tpl.Section)
			}
			c.section = &sec
			p, err := fieldpath.Parse(sec.Discriminator)
			if err != nil {
				return nil, fmt.Errorf("template %q: section %q: %w", tpl.ID, sec.ID, err)
			}
			c.deps = append(c.deps, p)
		}

		if tpl.Selector != "" {
			p, err := fieldpath.Parse(tpl.Selector)
			if err != nil {
				return nil, fmt.Errorf("template %q: selector: %w", tpl.ID, err)
			}
			c.selector = p
			c.deps = append(c.deps, p)
		}

		for _, b := range tpl.Tokens {
			p, err := fieldpath.Parse(b.Path)
			if err != nil {
				return nil, fmt.Errorf("template %q: token %q: %w", tpl.ID, b.Token, err)
			}
			if b.Placeholder == "" {
				b.Placeholder = "[" + b.Token + "]"
			}
			c.tokens[b.Token] = boundToken{binding: b, path: p}
			c.deps = append(c.deps, p)
		}

		if _, dup := e.byID[tpl.ID]; dup {
			return nil, fmt.Errorf("duplicate template %q", tpl.ID)
		}
		e.byID[tpl.ID] = c
		e.order = append(e.order, tpl.ID)
	}
	return e, nil
}

// IDs returns template IDs in declaration order.
func (e *Engine) IDs() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Template returns the registered template definition.
func (e *Engine) Template(id string) (ir.Template, bool) {
	c, ok := e.byID[id]
	if !ok {
		return ir.Template{}, false
	}
	return c.tpl, true
}

// Dependencies returns every path whose change can alter the rendering of id:
// the section discriminator, the selector and each bound token.
func (e *Engine) Dependencies(id string) ([]fieldpath.Path, error) {
	c, ok := e.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTemplate, id)
	}
	out := make([]fieldpath.Path, len(c.deps))
	copy(out, c.deps)
	return out, nil
}

// Affected returns, in declaration order, the templates that depend on any
// of the changed paths.
func (e *Engine) Affected(changed []fieldpath.Path) []string {
	var ids []string
	for _, id := range e.order {
		if dependsOn(e.byID[id].deps, changed) {
			ids = append(ids, id)
		}
	}
	return ids
}

func dependsOn(deps, changed []fieldpath.Path) bool {
	for _, d := range deps {
		for _, c := range changed {
			if fieldpath.Overlaps(d, c) {
				return true
			}
		}
	}
	return false
}

// Render renders template id against store.
func (e *Engine) Render(id string, store fields.Store) (Rendering, error) {
	c, ok := e.byID[id]
	if !ok {
		return Rendering{}, fmt.Errorf("%w %q", ErrUnknownTemplate, id)
	}

	r := Rendering{ID: id}
	if c.section != nil && !store.SectionActive(*c.section) {
		return r, nil
	}
	r.Applicable = true

	body := c.tpl.Body
	if !c.selector.IsZero() {
		sel, _ := store.GetPath(c.selector)
		if v, ok := c.tpl.Variant(ir.Text(sel)); ok {
			r.Variant = v.Name
			r.Manual = v.Manual
			body = v.Body
		}
	}
	if r.Manual {
		return r, nil
	}

	seen := make(map[string]bool)
	r.Text = substitute(body, func(token string) (string, bool) {
		bt, ok := c.tokens[token]
		if !ok {
			return "", false
		}
		if text := e.tokenText(bt, store); text != "" {
			return text, true
		}
		if !seen[bt.binding.Path] {
			seen[bt.binding.Path] = true
			r.Missing = append(r.Missing, bt.binding.Path)
		}
		return bt.binding.Placeholder, true
	})
	return r, nil
}

func (e *Engine) tokenText(bt boundToken, store fields.Store) string {
	v, ok := store.GetPath(bt.path)
	if !ok || fieldpath.IsEmpty(v) {
		return ""
	}
	if bt.binding.Transform != "" {
		out, ok := e.registry.Apply(bt.binding.Transform, v, transform.Context{
			Args:  bt.binding.Args,
			Store: store,
		})
		if !ok {
			return ""
		}
		v = out
	}
	return strings.TrimSpace(ir.Text(v))
}

// substitute replaces each "[TOKEN]" in body for which lookup reports ok.
// Text inserted for one token is never scanned for further tokens, and
// brackets that do not name a bound token are copied through.
func substitute(body string, lookup func(token string) (string, bool)) string {
	var b strings.Builder
	rest := body
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		rest = rest[open:]

		end := strings.IndexAny(rest[1:], "[]")
		if end < 0 || rest[1+end] == '[' {
			b.WriteByte('[')
			rest = rest[1:]
			continue
		}

		token := rest[1 : 1+end]
		if text, ok := lookup(token); ok {
			b.WriteString(text)
		} else {
			b.WriteString(rest[:end+2])
		}
		rest = rest[end+2:]
	}
}

// Tokens lists the bracketed tokens in body, in order of appearance.
func Tokens(body string) []string {
	var out []string
	substitute(body, func(token string) (string, bool) {
		out = append(out, token)
		return "", false
	})
	return out
}

var tokenCaser = cases.Upper(language.Und)

// DefaultToken derives a token name from a bound path's last name segment:
// "applicants[0].nationality" -> "NATIONALITY",
// "form2_applicant_name" -> "FORM2 APPLICANT NAME".
func DefaultToken(path string) string {
	p, err := fieldpath.Parse(path)
	if err != nil {
		return tokenCaser.String(path)
	}
	segs := p.Segments()
	name := ""
	for i := len(segs) - 1; i >= 0; i-- {
		if !segs[i].IsIndex {
			name = segs[i].Name
			break
		}
	}
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	return tokenCaser.String(strings.Join(words, " "))
}
