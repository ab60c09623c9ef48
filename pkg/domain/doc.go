// Package domain holds the core types of the orchestration graph: the
// per-turn ExecutionState, the Delta reducer nodes use to report partial
// updates, the closed Intent set, and the error taxonomy separating
// turn-local failures from invariant and fatal errors.
//
// The package has no dependencies on adapters or the runtime; it is the
// vocabulary shared by all of them.
package domain
