package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/ir"
)

var testNow = time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func src(source, transform, tag string) ir.Candidate {
	return ir.Candidate{Source: source, Transform: transform, Tag: tag}
}

// patentRules is a small rule set shaped like the built-in patent table.
func patentRules() *ir.RuleSet {
	return &ir.RuleSet{
		Name: "test",
		Sections: []ir.Section{
			{ID: "convention", Discriminator: "form1_application_type", Values: ir.IRArray{ir.IRString("convention")}},
			{ID: "complete", Discriminator: "form2_specification_type", Values: ir.IRArray{ir.IRString("complete")}},
		},
		Rules: []ir.Rule{
			{
				Target: "form3_applicant_name",
				Candidates: []ir.Candidate{
					src("form6_assignee_name", "identity", "form6"),
					src("form2_applicant_name", "identity", "form2"),
					src("applicants[0].name", "identity", "form1"),
				},
			},
			{
				Target:     "form3_applicant_address",
				Candidates: []ir.Candidate{src("applicants[0].address", "address_join", "form1")},
			},
			{
				Target:     "form2_specification_type",
				Refresh:    true,
				Candidates: []ir.Candidate{src("form1_claims_count", "numeric_presence", "form1")},
			},
			{
				Target:     "form2_claims_title",
				Section:    "complete",
				Candidates: []ir.Candidate{src("form1_title", "identity", "form1")},
			},
			{
				Target:     "form5_priority_country",
				Section:    "convention",
				Candidates: []ir.Candidate{src("priority[0].country", "identity", "form1")},
			},
			{
				Target: "form5_inventors",
				Candidates: []ir.Candidate{{
					Source:    "form1_inventors_same",
					Transform: "conditional_pick",
					Args: ir.IRObject{
						"cases":  ir.IRObject{"yes": ir.IRString("applicants"), "no": ir.IRString("form1_inventors")},
						"fields": ir.IRObject{"name": ir.IRString("name")},
					},
					Tag: "form1",
				}},
				Default: &ir.Candidate{Transform: "blank_row", Args: ir.IRObject{"fields": ir.IRArray{ir.IRString("name")}}},
			},
			{
				Target:  "form5_declaration_date",
				Default: &ir.Candidate{Transform: "today"},
			},
			{
				Target: "signatory",
				Candidates: []ir.Candidate{
					{Source: "form26_agents", Transform: "pick", Args: ir.IRObject{"field": ir.IRString("name")}, Tag: "form26"},
					src("applicants[0].name", "identity", "form1"),
				},
			},
		},
		Templates: []ir.Template{
			{
				ID:       "form6_transfer",
				Output:   "form6_statement",
				Selector: "form6_transfer_kind",
				Body:     "[ASSIGNEE] acquired the application from [APPLICANT].",
				Variants: []ir.Variant{
					{Name: "merger", Body: "[ASSIGNEE] succeeded [APPLICANT] by merger."},
					{Name: "assignment", Body: "[APPLICANT] assigned the invention to [ASSIGNEE]."},
					{Name: "custom", Manual: true},
				},
				Tokens: []ir.TokenBinding{
					{Token: "APPLICANT", Path: "form2_applicant_name"},
					{Token: "ASSIGNEE", Path: "form6_assignee_name"},
				},
			},
			{
				ID:      "form2_claims_preamble",
				Section: "complete",
				Body:    "We claim: [TITLE]",
				Tokens:  []ir.TokenBinding{{Token: "TITLE", Path: "form2_claims_title"}},
			},
		},
	}
}

func newTestEngine(t *testing.T, rs *ir.RuleSet, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithNow(func() time.Time { return testNow }),
		WithLogger(discardLogger()),
	}
	e, err := New(rs, append(base, opts...)...)
	require.NoError(t, err)
	return e
}

// load applies an EventLoad of snap to an empty state.
func load(t *testing.T, e *Engine, snap ir.IRObject) Transition {
	t.Helper()
	tr, err := e.Apply(NewState(), EventLoad{Snapshot: snap})
	require.NoError(t, err)
	return tr
}

// edit applies a field change and fails the test on error.
func edit(t *testing.T, e *Engine, s State, path string, v ir.IRValue) Transition {
	t.Helper()
	tr, err := e.Apply(s, EventFieldChange{Path: path, Value: v})
	require.NoError(t, err)
	return tr
}

func get(s State, path string) ir.IRValue {
	v, _ := s.Fields.Get(path)
	return v
}

func tag(s State, path string) string {
	t, _ := s.Provenance.GetSource(path)
	return t
}
