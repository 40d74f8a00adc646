// Package engine implements the formsync derivation engine.
//
// The engine is a pure transition function:
//
//	Apply(State, Event) -> (Transition, error)
//
// A State holds the field store and the provenance tracker. Apply never
// mutates its input; on error the caller keeps its previous State, so no
// partial derivation is ever observable.
//
// Derivation Pass:
// Every registered target is evaluated in rule order (the compiler orders
// sources before the targets that read them):
//  1. targets the user edited are skipped
//  2. targets in an inactive section report not_applicable
//  3. non-empty targets are sticky unless the rule refreshes or the value
//     is a default, which gives way to the first candidate that resolves
//  4. candidates are tried left to right; the first non-empty result wins
//  5. otherwise the default candidate, tagged "default"
//  6. otherwise the target stays unresolved; a refreshed value whose
//     sources are all gone is cleared
//
// Template outputs are rendered after the rules. Passes repeat until one
// writes nothing, bounded by the pass quota (WithMaxPasses).
//
// Determinism:
// Rule order, candidate order and template declaration order are the only
// orderings. The wall clock is read once per Apply, for date defaults.
package engine
