package cli

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/ir"
)

// ReadDraft reads a YAML or JSON field document. An empty file is an empty
// draft. Floats are rejected.
func ReadDraft(path string) (ir.IRObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw == nil {
		return ir.IRObject{}, nil
	}
	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("parse %s: draft must be an object, got %s", path, ir.KindOf(v))
	}
	return obj, nil
}

// parseNow reads a --now flag: a date (2006-01-02) or an RFC 3339
// timestamp. Empty means the wall clock.
func parseNow(s string) (func() time.Time, error) {
	if s == "" {
		return time.Now, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid --now %q: want YYYY-MM-DD or RFC 3339", s)
	}
	t = t.UTC()
	return func() time.Time { return t }, nil
}

// editFlags are the --set and --activate flags shared by derive and watch.
type editFlags struct {
	Set      []string
	Activate []string
}

// events turns the flags into engine events: every --set in order, then
// every --activate. A --set value is always a string; "path=" clears.
func (f editFlags) events() ([]engine.Event, error) {
	var evs []engine.Event
	for _, kv := range f.Set {
		path, value, ok := strings.Cut(kv, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --set %q: want path=value", kv)
		}
		evs = append(evs, engine.EventFieldChange{Path: path, Value: ir.IRString(value)})
	}
	for _, id := range f.Activate {
		evs = append(evs, engine.EventSectionActivated{SectionID: id})
	}
	return evs, nil
}

// DeriveResult is a draft after derivation.
type DeriveResult struct {
	DraftID    string               `json:"draft_id,omitempty"`
	RuleSet    string               `json:"ruleset"`
	Hash       string               `json:"hash"`
	Fields     any                  `json:"fields"`
	Provenance map[string]string    `json:"provenance"`
	Status     map[string]ir.Status `json:"status"`
	Changed    []string             `json:"changed"`
}

func newDeriveResult(eng *engine.Engine, s engine.State, changed []string) (*DeriveResult, error) {
	hash, err := s.Fields.Hash()
	if err != nil {
		return nil, err
	}
	if changed == nil {
		changed = []string{}
	}
	return &DeriveResult{
		RuleSet:    eng.RuleSet().Name,
		Hash:       hash,
		Fields:     ir.ToAny(s.Fields.Snapshot()),
		Provenance: s.Provenance.Snapshot(),
		Status:     eng.Statuses(s),
		Changed:    changed,
	}, nil
}

// printDerive writes the text form: one line per rule target or template
// output with its status, value and source tag.
func printDerive(f *OutputFormatter, eng *engine.Engine, s engine.State, res *DeriveResult) {
	f.Printf("✓ Derived %d field(s) with rules %q\n\n", len(res.Changed), res.RuleSet)

	paths := make([]string, 0, len(res.Status))
	for p := range res.Status {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		line := fmt.Sprintf("  %-32s %-14s %s", p, res.Status[p], valueText(s, p))
		if tag, ok := s.Provenance.GetSource(p); ok {
			line += "  [" + tag + "]"
		}
		f.Printf("%s\n", line)
	}
	f.Printf("\nHash: %s\n", res.Hash)
	if res.DraftID != "" {
		f.Printf("Draft: %s\n", res.DraftID)
	}
}

func valueText(s engine.State, path string) string {
	v, ok := s.Fields.Get(path)
	if !ok {
		return "(unset)"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return "(unprintable)"
	}
	return string(b)
}

// uniqueSorted merges changed-path lists from several transitions.
func uniqueSorted(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, l := range lists {
		for _, p := range l {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

func newEngine(rs *ir.RuleSet, now func() time.Time, logger *slog.Logger) (*engine.Engine, error) {
	return engine.New(rs, engine.WithNow(now), engine.WithLogger(logger))
}
