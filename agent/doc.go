// Package agent implements the bounded reasoning loop that resolves one task
// to an output: repeated think / act / observe cycles against a model
// provider and a tool capability set, limited by a configurable iteration
// budget with an optional reflection pass.
package agent
