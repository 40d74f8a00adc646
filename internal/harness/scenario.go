package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BuiltinRules names the embedded patent rule table in a scenario's rules
// field. It is also the default.
const BuiltinRules = "builtin"

// Scenario is one derivation test: a starting draft, a list of edits, and
// the expected state after them.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is a CUE rule table path, relative to the scenario file, or
	// "builtin".
	Rules string `yaml:"rules,omitempty"`

	// Now is the clock reading every step is applied at, as a date
	// (2006-01-02) or an RFC 3339 timestamp.
	Now string `yaml:"now"`

	// Initial is the snapshot loaded before the first step.
	Initial map[string]any `yaml:"initial"`

	// Steps run in order after the load.
	Steps []Step `yaml:"steps,omitempty"`

	// Expect is checked against the final state.
	Expect Expect `yaml:"expect"`

	// DraftID fixes the draft ID used in the event log.
	DraftID string `yaml:"draft_id,omitempty"`

	now time.Time
}

// Step is one event. Exactly one of Set, Activate, MarkUser, Reset and Load
// is given.
type Step struct {
	Set      *SetStep       `yaml:"set,omitempty"`
	Activate string         `yaml:"activate,omitempty"`
	MarkUser string         `yaml:"mark_user,omitempty"`
	Reset    map[string]any `yaml:"reset,omitempty"`
	Load     map[string]any `yaml:"load,omitempty"`

	// Expect, when present, is checked right after this step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// SetStep is a user edit.
type SetStep struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// Expect lists the observations a scenario makes. Every map is a subset
// match: paths not named are not checked.
type Expect struct {
	// Values maps field paths to expected values. A null value expects the
	// path to be empty.
	Values map[string]any `yaml:"values,omitempty"`

	// Provenance maps paths to expected tags; "" expects no entry.
	Provenance map[string]string `yaml:"provenance,omitempty"`

	// Status maps rule targets and template outputs to their status.
	Status map[string]string `yaml:"status,omitempty"`

	// Rendered maps template IDs to their expected text.
	Rendered map[string]string `yaml:"rendered,omitempty"`

	// Changed is the exact write order of the step. Only valid on a step.
	Changed []string `yaml:"changed,omitempty"`

	// Templates is the exact list of templates the step flagged for
	// re-rendering. Write [] to expect none.
	Templates []string `yaml:"templates,omitempty"`
}

// Step kinds, as reported in the trace.
const (
	StepSet      = "set"
	StepActivate = "activate"
	StepMarkUser = "mark_user"
	StepReset    = "reset"
	StepLoad     = "load"
)

// Kind names the event a step carries, or "" if it carries none or several.
func (s Step) Kind() string {
	var kinds []string
	if s.Set != nil {
		kinds = append(kinds, StepSet)
	}
	if s.Activate != "" {
		kinds = append(kinds, StepActivate)
	}
	if s.MarkUser != "" {
		kinds = append(kinds, StepMarkUser)
	}
	if s.Reset != nil {
		kinds = append(kinds, StepReset)
	}
	if s.Load != nil {
		kinds = append(kinds, StepLoad)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// LoadScenario reads and validates a scenario YAML file. Unknown fields are
// rejected so that typos fail loudly. A relative rules path is resolved
// against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Rules != BuiltinRules && !filepath.IsAbs(s.Rules) {
		s.Rules = filepath.Join(filepath.Dir(path), s.Rules)
		if _, err := os.Stat(s.Rules); err != nil {
			return nil, fmt.Errorf("invalid scenario: rules file: %w", err)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. Relative rules paths
// are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Rules == "" {
		s.Rules = BuiltinRules
	}
	if s.DraftID == "" {
		s.DraftID = "scenario-" + s.Name
	}

	now, err := parseNow(s.Now)
	if err != nil {
		return err
	}
	s.now = now

	if s.Initial == nil {
		s.Initial = map[string]any{}
	}
	if len(s.Expect.Changed) > 0 {
		return fmt.Errorf("expect.changed is only valid on a step")
	}

	for i, step := range s.Steps {
		kind := step.Kind()
		if kind == "" {
			return fmt.Errorf("steps[%d]: exactly one of set, activate, mark_user, reset, load is required", i)
		}
		if kind == StepSet && step.Set.Path == "" {
			return fmt.Errorf("steps[%d].set: path is required", i)
		}
	}
	return nil
}

func parseNow(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("now is required")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("now %q: want 2006-01-02 or RFC 3339", s)
	}
	return t.UTC(), nil
}
