package engine

// Scope selects which targets and templates a derivation pass evaluates.
type Scope struct {
	// Section limits the pass to one section's members. Empty means all.
	Section string
}

// ScopeAll evaluates every target and template.
func ScopeAll() Scope {
	return Scope{}
}

// ScopeSection evaluates only the members of the given section.
func ScopeSection(id string) Scope {
	return Scope{Section: id}
}

// Includes reports whether a member of section belongs to the scope.
func (s Scope) Includes(section string) bool {
	return s.Section == "" || s.Section == section
}
