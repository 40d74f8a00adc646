package ir

// Status reports how a target field stands after a derivation pass.
type Status string

const (
	// StatusDerived means a source candidate supplied the value.
	StatusDerived Status = "derived"

	// StatusDefault means the rule's default candidate supplied the value.
	StatusDefault Status = "default"

	// StatusUser means the user edited the target; derivation is suppressed.
	StatusUser Status = "user"

	// StatusPresent means the target already held a value with no recorded
	// source, typically from a loaded draft.
	StatusPresent Status = "present"

	// StatusUnresolved means no candidate produced a value.
	StatusUnresolved Status = "unresolved"

	// StatusNotApplicable means the target's section is inactive.
	StatusNotApplicable Status = "not_applicable"
)

// Provenance tags with fixed meaning.
const (
	TagUser    = "user"
	TagDefault = "default"

	// TagTemplatePrefix prefixes the tag recorded for template outputs:
	// "template:<id>".
	TagTemplatePrefix = "template:"
)
