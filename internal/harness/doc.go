// Package harness runs derivation scenarios against a rule table.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: applicant_chain
//	description: "Form 3 applicant name follows Form 2 over Form 1"
//	rules: builtin            # or a .cue file relative to this file
//	now: "2026-03-09"
//	initial:
//	  applicants:
//	    - name: Acme Labs
//	steps:
//	  - set: { path: form2_applicant_name, value: Acme Pvt Ltd }
//	    expect:
//	      changed: [form2_applicant_name]
//	  - activate: convention
//	  - mark_user: form3_applicant_name
//	expect:
//	  values: { form3_applicant_name: Acme Labs }
//	  provenance: { form3_applicant_name: form1 }
//	  status: { form3_applicant_name: derived }
//	  rendered: { form5_declaration: "..." }
//
// The initial snapshot is applied as a load event; each step is one more
// event. Every step runs at the scenario's fixed now, through a session
// writing to an in-memory draft store, so a run is deterministic.
//
// After the last step the harness replays the stored event log and checks
// that it reproduces the final field hash.
//
// # Golden Files
//
// RunWithGolden compares a text snapshot of the run against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
