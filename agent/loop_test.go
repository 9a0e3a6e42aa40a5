package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/model"
	"github.com/hupe1980/missionmesh/tool"
)

func newTestAgent(mdl model.Model, tools []tool.Tool, planning core.PlanningSpec) *Agent {
	return New(core.AgentSpec{
		Name:        "tester",
		Description: "test agent",
		Planning:    planning,
	}, mdl, tools)
}

func collectEvents(events *[]core.Event) EmitFunc {
	return func(ev core.Event) { *events = append(*events, ev) }
}

func TestExecuteFailOpenRawText(t *testing.T) {
	mdl := model.NewMockModel("m").AddResponse("not valid json")
	a := newTestAgent(mdl, nil, core.PlanningSpec{MaxIterations: 5})

	answer, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1", Description: "do"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "not valid json", answer)
	assert.Equal(t, 1, mdl.Calls())
}

func TestExecuteFinalAnswer(t *testing.T) {
	mdl := model.NewMockModel("m").
		AddResponse(`{"thought": "done", "action": "final", "answer": "42"}`)
	a := newTestAgent(mdl, nil, core.PlanningSpec{MaxIterations: 5})

	answer, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
}

func TestExecuteToolThenFinal(t *testing.T) {
	var invokedWith string
	lookup := tool.NewFunctionTool("lookup", "Look something up", func(_ context.Context, input string) (string, error) {
		invokedWith = input
		return "found: 42", nil
	})

	mdl := model.NewMockModel("m").
		AddResponse(`{"thought": "need data", "action": "lookup", "input": "answer to everything"}`).
		AddResponse(`{"thought": "got it", "action": "final", "answer": "the answer is 42"}`)
	a := newTestAgent(mdl, []tool.Tool{lookup}, core.PlanningSpec{MaxIterations: 5})

	var events []core.Event
	answer, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", collectEvents(&events))
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", answer)
	assert.Equal(t, "answer to everything", invokedWith)
	assert.Equal(t, 2, mdl.Calls())

	var thoughts []string
	for _, ev := range events {
		if ev.Type == core.EventConsole {
			thoughts = append(thoughts, ev.Message)
		}
	}
	assert.Contains(t, thoughts, "need data")
}

func TestExecuteUnknownToolContinues(t *testing.T) {
	mdl := model.NewMockModel("m").
		AddResponse(`{"thought": "try", "action": "no_such_tool", "input": "x"}`).
		AddResponse(`{"thought": "ok", "action": "final", "answer": "recovered"}`)
	a := newTestAgent(mdl, nil, core.PlanningSpec{MaxIterations: 5})

	answer, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	assert.Equal(t, 2, mdl.Calls())
}

func TestExecuteToolFailureContinues(t *testing.T) {
	failing := tool.NewFunctionTool("flaky", "Fails", func(context.Context, string) (string, error) {
		return "", errors.New("backend unavailable")
	})

	mdl := model.NewMockModel("m").
		AddResponse(`{"thought": "call it", "action": "flaky", "input": ""}`).
		AddResponse(`{"thought": "give up", "action": "final", "answer": "done without tool"}`)
	a := newTestAgent(mdl, []tool.Tool{failing}, core.PlanningSpec{MaxIterations: 5})

	answer, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "done without tool", answer)
}

func TestExecuteIterationBudgetExhausted(t *testing.T) {
	echo := tool.NewFunctionTool("echo", "Echo", func(_ context.Context, input string) (string, error) {
		return input, nil
	})

	mdl := model.NewMockModel("m").
		AddResponse(`{"thought": "loop", "action": "echo", "input": "1"}`).
		AddResponse(`{"thought": "loop again", "action": "echo", "input": "2"}`)
	a := newTestAgent(mdl, []tool.Tool{echo}, core.PlanningSpec{MaxIterations: 2})

	answer, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", nil)
	require.NoError(t, err)
	assert.True(t, strings.Contains(answer, "2 iterations"), "answer should mention the budget: %s", answer)
	assert.Equal(t, 2, mdl.Calls())
}

func TestExecuteReflection(t *testing.T) {
	mdl := model.NewMockModel("m").
		AddResponse(`{"thought": "candidate", "action": "final", "answer": "draft"}`).
		AddResponse(`{"thought": "confirmed", "action": "final", "answer": "polished"}`)
	a := newTestAgent(mdl, nil, core.PlanningSpec{MaxIterations: 5, Reflection: true})

	answer, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "polished", answer)
	assert.Equal(t, 2, mdl.Calls())
}

func TestExecuteModelTimeoutIsObservation(t *testing.T) {
	mdl := model.NewMockModel("m").
		AddError(context.DeadlineExceeded).
		AddResponse(`{"thought": "retry worked", "action": "final", "answer": "late but fine"}`)
	a := newTestAgent(mdl, nil, core.PlanningSpec{MaxIterations: 5})

	answer, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "late but fine", answer)
	assert.Equal(t, 2, mdl.Calls())
}

func TestExecuteProviderErrorIsFatal(t *testing.T) {
	mdl := model.NewMockModel("m").AddError(errors.New("connection refused"))
	a := newTestAgent(mdl, nil, core.PlanningSpec{MaxIterations: 5})

	_, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mdl := model.NewMockModel("m").AddResponse("unused")
	a := newTestAgent(mdl, nil, core.PlanningSpec{MaxIterations: 5})

	_, err := a.Execute(ctx, core.TaskSpec{ID: "t1"}, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteEmitsThinkingStatus(t *testing.T) {
	mdl := model.NewMockModel("m").
		AddResponse(`{"action": "final", "answer": "ok"}`)
	a := newTestAgent(mdl, nil, core.PlanningSpec{MaxIterations: 1})

	var events []core.Event
	_, err := a.Execute(context.Background(), core.TaskSpec{ID: "t1"}, "", collectEvents(&events))
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventStatus, events[0].Type)
	assert.Equal(t, core.TaskThinking, events[0].Status)
	assert.Equal(t, "t1", events[0].TaskID)
}
