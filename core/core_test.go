package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunProgress(t *testing.T) {
	r := Run{TasksTotal: 4, TasksCompleted: 2}
	assert.Equal(t, 50, r.Progress())

	r = Run{TasksTotal: 0}
	assert.Equal(t, 0, r.Progress())

	r = Run{TasksTotal: 3, TasksCompleted: 3}
	assert.Equal(t, 100, r.Progress())
}

func TestRunClone(t *testing.T) {
	r := &Run{ID: "r1", Results: map[string]TaskResult{"a": {Output: "x"}}}
	c := r.Clone()
	c.Results["a"] = TaskResult{Output: "mutated"}
	assert.Equal(t, "x", r.Results["a"].Output)
}

func TestRunSummary(t *testing.T) {
	r := Run{ID: "r1", Project: "p", TasksTotal: 2, TasksCompleted: 1, Status: RunRunning}
	s := r.Summary()
	assert.Equal(t, "r1", s.RunID)
	assert.Equal(t, 50, s.Progress)
	assert.False(t, s.Completed)

	r.Status = RunStopped
	assert.True(t, r.Summary().Completed)
}

func TestTaskSpecKindDefaultsToAgent(t *testing.T) {
	assert.Equal(t, TaskTypeAgent, TaskSpec{}.Kind())
	assert.Equal(t, TaskTypeTool, TaskSpec{Type: TaskTypeTool}.Kind())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, TaskCompleted.Terminal())
	assert.True(t, TaskFailed.Terminal())
	assert.False(t, TaskThinking.Terminal())
	assert.False(t, TaskWaitingInput.Terminal())

	assert.True(t, RunError.Terminal())
	assert.False(t, RunRunning.Terminal())
}

func TestEventTerminal(t *testing.T) {
	assert.True(t, NewCompleteEvent(nil, 1, false).Terminal())
	assert.True(t, NewErrorEvent("boom").Terminal())
	assert.False(t, NewConsoleEvent("a", "msg").Terminal())
}

func TestNewPlanEvent(t *testing.T) {
	ev := NewPlanEvent("proj", "react", []TaskSpec{{ID: "a", Agent: "w", Description: "d"}})
	assert.Equal(t, EventPlan, ev.Type)
	assert.Equal(t, "proj", ev.Project)
	assert.Len(t, ev.Tasks, 1)
	assert.Equal(t, "a", ev.Tasks[0].ID)
}
