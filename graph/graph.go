package graph

import (
	"github.com/hupe1980/missionmesh/core"
)

// RunGraph is a compiled, cycle-free task graph plus a deterministic
// topological order. It is immutable after Compile and owned exclusively by
// one run for its lifetime.
type RunGraph struct {
	tasks      map[string]core.TaskSpec
	order      []string
	deps       map[string][]string
	dependents map[string][]string
}

// Compile validates the task list and produces a RunGraph. It fails with
// DuplicateTaskError, UnknownDependencyError, CycleError or
// UnresolvedBindingError; it has no side effects.
func Compile(tasks []core.TaskSpec) (*RunGraph, error) {
	g := &RunGraph{
		tasks:      make(map[string]core.TaskSpec, len(tasks)),
		deps:       make(map[string][]string, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
	}

	for _, t := range tasks {
		if _, ok := g.tasks[t.ID]; ok {
			return nil, &DuplicateTaskError{TaskID: t.ID}
		}
		g.tasks[t.ID] = t
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				return nil, &UnknownDependencyError{TaskID: t.ID, DependsOn: dep}
			}
			g.deps[t.ID] = append(g.deps[t.ID], dep)
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	// Depth-first topological sort with visiting/visited marks. Visiting a
	// node twice while it is still on the stack proves a cycle. Declaration
	// order drives the traversal so the resulting order is deterministic.
	const (
		unseen = iota
		visiting
		visited
	)
	marks := make(map[string]int, len(tasks))
	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case visiting:
			return &CycleError{TaskID: id}
		case visited:
			return nil
		}
		marks[id] = visiting
		for _, dep := range g.deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[id] = visited
		g.order = append(g.order, id)
		return nil
	}
	for _, t := range tasks {
		if err := visit(t.ID); err != nil {
			return nil, err
		}
	}

	if err := g.validateBindings(); err != nil {
		return nil, err
	}

	return g, nil
}

// validateBindings checks that every binding token references a task inside
// the binding task's transitive dependency set.
func (g *RunGraph) validateBindings() error {
	for _, id := range g.order {
		refs := ExtractBindings(g.tasks[id].Input)
		if len(refs) == 0 {
			continue
		}
		reachable := g.transitiveDeps(id)
		for _, ref := range refs {
			if _, ok := reachable[ref.TaskID]; !ok {
				return &UnresolvedBindingError{TaskID: id, Ref: ref.TaskID}
			}
		}
	}
	return nil
}

func (g *RunGraph) transitiveDeps(id string) map[string]struct{} {
	out := make(map[string]struct{})
	stack := append([]string(nil), g.deps[id]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := out[next]; ok {
			continue
		}
		out[next] = struct{}{}
		stack = append(stack, g.deps[next]...)
	}
	return out
}

// Len returns the number of tasks in the graph.
func (g *RunGraph) Len() int { return len(g.order) }

// Tasks returns the task specs in topological order.
func (g *RunGraph) Tasks() []core.TaskSpec {
	out := make([]core.TaskSpec, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Task looks up a task spec by id.
func (g *RunGraph) Task(id string) (core.TaskSpec, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Dependencies returns the direct dependency ids of a task.
func (g *RunGraph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the ids of tasks that directly depend on id.
func (g *RunGraph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}
