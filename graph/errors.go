package graph

import "fmt"

// DuplicateTaskError reports two tasks sharing the same identifier.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task id %q", e.TaskID)
}

// UnknownDependencyError reports a depends_on entry referencing a
// non-existent task.
type UnknownDependencyError struct {
	TaskID    string
	DependsOn string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.DependsOn)
}

// CycleError reports that the dependency relation is not a DAG.
type CycleError struct {
	TaskID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency detected at task %q", e.TaskID)
}

// UnresolvedBindingError reports an input binding referencing a task that is
// not in the binding task's transitive dependency set, so the referenced
// output can never exist when the task launches.
type UnresolvedBindingError struct {
	TaskID string
	Ref    string
}

func (e *UnresolvedBindingError) Error() string {
	return fmt.Sprintf("task %q binds to %q which is not among its transitive dependencies", e.TaskID, e.Ref)
}

// BindingResolutionError reports a binding that referenced a field missing
// from a dependency's recorded output at launch time. It fails the task (and
// its downstream dependents) without aborting independent branches.
type BindingResolutionError struct {
	TaskID string
	Token  string
	Reason string
}

func (e *BindingResolutionError) Error() string {
	return fmt.Sprintf("task %q: cannot resolve binding %s: %s", e.TaskID, e.Token, e.Reason)
}
