package ir

// RuleSet is a compiled derivation table: the conditional sections, one
// rule per target field, and the statement templates.
//
// Rules are stored in evaluation order (sources before the targets that read
// them; declaration order breaks ties). The compiler guarantees this order
// and rejects cycles.
type RuleSet struct {
	Name      string     `json:"name"`
	Sections  []Section  `json:"sections"`
	Rules     []Rule     `json:"rules"`
	Templates []Template `json:"templates"`
}

// Section gates a group of targets and templates on a discriminator field.
// The section is active when the discriminator's value equals one of Values.
type Section struct {
	ID            string  `json:"id"`
	Title         string  `json:"title,omitempty"`
	Discriminator string  `json:"discriminator"`
	Values        IRArray `json:"values"`
}

// Rule derives a single target field from an ordered candidate chain.
type Rule struct {
	Target     string      `json:"target"`
	Form       string      `json:"form,omitempty"`
	Section    string      `json:"section,omitempty"`
	Candidates []Candidate `json:"candidates"`
	Default    *Candidate  `json:"default,omitempty"`

	// Refresh re-derives a non-empty target whose current value came from
	// this rule. User edits are never refreshed.
	Refresh bool `json:"refresh,omitempty"`
}

// Candidate is one source in a rule's priority chain. Source is empty for
// default-only transforms such as today or literal.
type Candidate struct {
	Source    string   `json:"source,omitempty"`
	Transform string   `json:"transform"`
	Args      IRObject `json:"args,omitempty"`
	Tag       string   `json:"tag"`
}

// Template is a statement body with bracketed tokens bound to field paths.
type Template struct {
	ID      string `json:"id"`
	Section string `json:"section,omitempty"`

	// Output, when set, is the field the rendered text is written to.
	Output string `json:"output,omitempty"`

	// Body is used when there is no selector or the selected variant is
	// unknown.
	Body     string         `json:"body"`
	Selector string         `json:"selector,omitempty"`
	Variants []Variant      `json:"variants,omitempty"`
	Tokens   []TokenBinding `json:"tokens"`
}

// Variant is an alternative body chosen by the template's selector field.
// A manual variant has no body; its output is written by the user.
type Variant struct {
	Name   string `json:"name"`
	Body   string `json:"body,omitempty"`
	Manual bool   `json:"manual,omitempty"`
}

// TokenBinding binds a bracketed token to a field path. Placeholder is the
// bracketed text written while the field is empty, e.g. "[APPLICANT NAME]".
type TokenBinding struct {
	Token       string   `json:"token"`
	Path        string   `json:"path"`
	Transform   string   `json:"transform,omitempty"`
	Args        IRObject `json:"args,omitempty"`
	Placeholder string   `json:"placeholder"`
}

// Rule returns the rule for target, if any.
func (rs *RuleSet) Rule(target string) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.Target == target {
			return r, true
		}
	}
	return Rule{}, false
}

// Section returns the section with the given ID, if any.
func (rs *RuleSet) Section(id string) (Section, bool) {
	for _, s := range rs.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Template returns the template with the given ID, if any.
func (rs *RuleSet) Template(id string) (Template, bool) {
	for _, t := range rs.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Variant returns the named variant, if declared.
func (t Template) Variant(name string) (Variant, bool) {
	for _, v := range t.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}
