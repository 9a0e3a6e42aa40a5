// Package graph compiles a declarative task list into a validated,
// cycle-free dependency graph with resolved input bindings.
//
// Compile is a pure function: it either returns a RunGraph that a scheduler
// can own for the lifetime of one run, or a typed compilation error
// (DuplicateTaskError, UnknownDependencyError, CycleError,
// UnresolvedBindingError) before any task executes.
package graph
