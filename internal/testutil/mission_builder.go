// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing missions and task specs. These helpers are
// intentionally minimal and not intended for production usage.
package testutil

import (
	"github.com/hupe1980/missionmesh/config"
	"github.com/hupe1980/missionmesh/core"
)

// MissionBuilder provides fluent construction of missions in tests.
// Example:
//
//	m := NewMissionBuilder("demo").
//		Agent("worker", core.AgentSpec{Provider: "mock"}).
//		Task(NewTask("a").Agent("worker").Build()).
//		Build()
//
// Chain only the parts you need; sensible defaults are applied.
type MissionBuilder struct {
	name   string
	path   string
	engine string
	agents map[string]core.AgentSpec
	tasks  []core.TaskSpec
}

// NewMissionBuilder creates a builder for a mission with the given name.
func NewMissionBuilder(name string) *MissionBuilder {
	return &MissionBuilder{
		name:   name,
		path:   "/missions/" + name + ".yaml",
		engine: config.EngineReact,
		agents: map[string]core.AgentSpec{},
	}
}

// Path overrides the manifest path used for duplicate collapsing (chainable).
func (b *MissionBuilder) Path(path string) *MissionBuilder {
	b.path = path
	return b
}

// Engine overrides the default react engine (chainable).
func (b *MissionBuilder) Engine(engine string) *MissionBuilder {
	b.engine = engine
	return b
}

// Agent registers an agent spec under the given name (chainable).
func (b *MissionBuilder) Agent(name string, spec core.AgentSpec) *MissionBuilder {
	spec.Name = name
	if spec.Provider == "" {
		spec.Provider = "mock"
	}
	if spec.Planning.MaxIterations == 0 {
		spec.Planning.MaxIterations = 3
	}
	b.agents[name] = spec
	return b
}

// Task appends a task spec (chainable).
func (b *MissionBuilder) Task(tasks ...core.TaskSpec) *MissionBuilder {
	b.tasks = append(b.tasks, tasks...)
	return b
}

// Build produces the mission.
func (b *MissionBuilder) Build() *config.Mission {
	return &config.Mission{
		Name:   b.name,
		Engine: b.engine,
		Path:   b.path,
		Agents: b.agents,
		Tasks:  b.tasks,
	}
}

// TaskBuilder provides fluent construction of task specs in tests.
type TaskBuilder struct {
	spec core.TaskSpec
}

// NewTask creates a builder for a task with the given id.
func NewTask(id string) *TaskBuilder {
	return &TaskBuilder{spec: core.TaskSpec{ID: id, Description: id}}
}

// Agent assigns the executing agent (chainable).
func (b *TaskBuilder) Agent(name string) *TaskBuilder {
	b.spec.Agent = name
	return b
}

// Tool marks the task as a direct tool invocation (chainable).
func (b *TaskBuilder) Tool(name string) *TaskBuilder {
	b.spec.Type = core.TaskTypeTool
	b.spec.Tool = name
	return b
}

// Input marks the task as a human-input intake with the given field ids (chainable).
func (b *TaskBuilder) Input(fieldIDs ...string) *TaskBuilder {
	b.spec.Type = core.TaskTypeInput
	ui := &core.UIIntake{}
	for _, id := range fieldIDs {
		ui.Fields = append(ui.Fields, core.UIField{ID: id, Required: true})
	}
	b.spec.UI = ui
	return b
}

// DependsOn declares dependency edges (chainable).
func (b *TaskBuilder) DependsOn(ids ...string) *TaskBuilder {
	b.spec.DependsOn = append(b.spec.DependsOn, ids...)
	return b
}

// Payload sets the task input expression (chainable).
func (b *TaskBuilder) Payload(input any) *TaskBuilder {
	b.spec.Input = input
	return b
}

// Build produces the task spec.
func (b *TaskBuilder) Build() core.TaskSpec {
	return b.spec
}
