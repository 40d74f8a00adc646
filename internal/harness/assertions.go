package harness

import (
	"fmt"
	"slices"
	"sort"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
)

// checkExpect evaluates exp against s and returns one message per failed
// observation. step is the trace entry the expectation follows; it may be
// nil when no event ran.
func checkExpect(label string, exp Expect, eng *engine.Engine, s engine.State, step *TraceEvent) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, label+": "+fmt.Sprintf(format, args...))
	}

	for _, path := range sortedKeys(exp.Values) {
		want, err := ir.FromAny(exp.Values[path])
		if err != nil {
			fail("values[%s]: %v", path, err)
			continue
		}
		got, _ := s.Fields.Get(path)
		if _, isNull := want.(ir.IRNull); isNull {
			if !fieldpath.IsEmpty(got) {
				fail("values[%s]: want empty, got %s", path, describe(got))
			}
			continue
		}
		if !ir.Equal(want, got) {
			fail("values[%s] mismatch (-want +got):\n%s", path, cmp.Diff(ir.ToAny(want), ir.ToAny(got)))
		}
	}

	for _, path := range sortedKeys(exp.Provenance) {
		want := exp.Provenance[path]
		got, ok := s.Provenance.GetSource(path)
		switch {
		case want == "" && ok:
			fail("provenance[%s]: want no entry, got %q", path, got)
		case want != "" && got != want:
			fail("provenance[%s]: want %q, got %q", path, want, got)
		}
	}

	if len(exp.Status) > 0 {
		statuses := eng.Statuses(s)
		for _, path := range sortedKeys(exp.Status) {
			got, ok := statuses[path]
			if !ok {
				fail("status[%s]: not a rule target or template output", path)
				continue
			}
			if string(got) != exp.Status[path] {
				fail("status[%s]: want %q, got %q", path, exp.Status[path], got)
			}
		}
	}

	for _, id := range sortedKeys(exp.Rendered) {
		r, err := eng.Render(id, s)
		if err != nil {
			fail("rendered[%s]: %v", id, err)
			continue
		}
		if diff := cmp.Diff(exp.Rendered[id], r.Text); diff != "" {
			fail("rendered[%s] mismatch (-want +got):\n%s", id, diff)
		}
	}

	if exp.Changed != nil {
		if step == nil {
			fail("changed: no step ran")
		} else if diff := cmp.Diff(exp.Changed, step.Changed); diff != "" {
			fail("changed mismatch (-want +got):\n%s", diff)
		}
	}

	if exp.Templates != nil {
		if step == nil {
			fail("templates: no step ran")
		} else if !slices.Equal(exp.Templates, step.Templates) {
			fail("templates mismatch (-want +got):\n%s", cmp.Diff(exp.Templates, step.Templates))
		}
	}

	return errs
}

func describe(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
