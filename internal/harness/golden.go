package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/formsync/internal/engine"
)

// Snapshot renders a run as stable text for golden comparison: the trace
// without pass counts, then the final fields, provenance and statuses in
// key order.
func Snapshot(name string, eng *engine.Engine, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)

	b.WriteString("trace:\n")
	for _, ev := range result.Trace {
		fmt.Fprintf(&b, "  %d %s", ev.Seq, ev.Kind)
		if ev.Path != "" {
			fmt.Fprintf(&b, " %s", ev.Path)
		}
		fmt.Fprintf(&b, " changed=[%s] templates=[%s]\n",
			strings.Join(ev.Changed, ","), strings.Join(ev.Templates, ","))
	}

	b.WriteString("fields:\n")
	snap := result.Final.Fields.Snapshot()
	for _, k := range snap.SortedKeys() {
		fmt.Fprintf(&b, "  %s = %s\n", k, describe(snap[k]))
	}

	b.WriteString("provenance:\n")
	tags := result.Final.Provenance.Snapshot()
	for _, k := range sortedKeys(tags) {
		fmt.Fprintf(&b, "  %s = %s\n", k, tags[k])
	}

	b.WriteString("status:\n")
	statuses := eng.Statuses(result.Final)
	for _, k := range sortedKeys(statuses) {
		fmt.Fprintf(&b, "  %s = %s\n", k, statuses[k])
	}
	return []byte(b.String())
}

// RunWithGolden runs sc and compares its snapshot with
// testdata/golden/<name>.golden. It returns the result so callers can make
// further assertions.
func RunWithGolden(t *testing.T, sc *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(sc)
	if err != nil {
		return nil, err
	}
	rs, err := LoadRules(sc.Rules)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(rs)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, Snapshot(sc.Name, eng, result))
	return result, nil
}

