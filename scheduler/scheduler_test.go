package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/missionmesh/agent"
	"github.com/hupe1980/missionmesh/bus"
	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/graph"
	"github.com/hupe1980/missionmesh/model"
	"github.com/hupe1980/missionmesh/tool"
)

const finalResponse = `{"thought": "done", "action": "final", "answer": "ok"}`

func workerAgents(mdl model.Model) map[string]*agent.Agent {
	return map[string]*agent.Agent{
		"worker": agent.New(core.AgentSpec{Name: "worker", Planning: core.PlanningSpec{MaxIterations: 3}}, mdl, nil),
	}
}

func agentTask(id string, deps ...string) core.TaskSpec {
	return core.TaskSpec{ID: id, Description: id, Agent: "worker", DependsOn: deps}
}

func completedSeq(t *testing.T, history []core.Event) map[string]uint64 {
	t.Helper()
	out := make(map[string]uint64)
	for _, ev := range history {
		if ev.Type == core.EventStatus && ev.Status == core.TaskCompleted {
			out[ev.TaskID] = ev.Seq
		}
	}
	return out
}

func TestRunRespectsTopologicalOrder(t *testing.T) {
	g, err := graph.Compile([]core.TaskSpec{
		agentTask("a"),
		agentTask("b", "a"),
		agentTask("c", "a"),
		agentTask("d", "b", "c"),
	})
	require.NoError(t, err)

	mdl := model.NewMockModel("m")
	for i := 0; i < 4; i++ {
		mdl.AddResponse(finalResponse)
	}

	b := bus.New()
	var completedSeen []int
	s := New("proj", "react", g, workerAgents(mdl), tool.NewRegistry(), b, func(o *Options) {
		o.Hooks = Hooks{
			OnTaskTerminal: func(_ string, _ core.TaskResult, completed int) {
				completedSeen = append(completedSeen, completed)
			},
		}
	})

	status := s.Run(context.Background())
	assert.Equal(t, core.RunCompleted, status)

	history := b.History()
	seqs := completedSeq(t, history)
	require.Len(t, seqs, 4)
	assert.Less(t, seqs["a"], seqs["b"])
	assert.Less(t, seqs["a"], seqs["c"])
	assert.Less(t, seqs["b"], seqs["d"])
	assert.Less(t, seqs["c"], seqs["d"])

	// Plan first, terminal complete event last and exactly once.
	assert.Equal(t, core.EventPlan, history[0].Type)
	last := history[len(history)-1]
	assert.Equal(t, core.EventComplete, last.Type)
	assert.False(t, last.Stopped)
	assert.Len(t, last.Results, 4)

	// Progress reported to the owner is monotonic.
	for i := 1; i < len(completedSeen); i++ {
		assert.GreaterOrEqual(t, completedSeen[i], completedSeen[i-1])
	}
	assert.Equal(t, 4, s.Completed())
}

// stopModel answers the first two calls, then blocks until cancellation.
type stopModel struct {
	mu           sync.Mutex
	calls        int
	reachedThird chan struct{}
	once         sync.Once
}

func (m *stopModel) Generate(ctx context.Context, _ model.Request) (model.Response, error) {
	m.mu.Lock()
	m.calls++
	calls := m.calls
	m.mu.Unlock()

	if calls <= 2 {
		return model.Response{Text: finalResponse}, nil
	}
	m.once.Do(func() { close(m.reachedThird) })
	<-ctx.Done()
	return model.Response{}, ctx.Err()
}

func (m *stopModel) Info() model.Info { return model.Info{Name: "stop", Provider: "mock"} }

func TestStopAtTaskBoundary(t *testing.T) {
	g, err := graph.Compile([]core.TaskSpec{
		agentTask("a"),
		agentTask("b", "a"),
		agentTask("c", "b"),
		agentTask("d", "c"),
	})
	require.NoError(t, err)

	mdl := &stopModel{reachedThird: make(chan struct{})}
	b := bus.New()
	s := New("proj", "react", g, workerAgents(mdl), tool.NewRegistry(), b)

	done := make(chan core.RunStatus, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case <-mdl.reachedThird:
	case <-time.After(5 * time.Second):
		t.Fatal("third task never started")
	}
	s.Stop()

	var status core.RunStatus
	select {
	case status = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, core.RunStopped, status)

	history := b.History()
	last := history[len(history)-1]
	assert.Equal(t, core.EventComplete, last.Type)
	assert.True(t, last.Stopped)

	seqs := completedSeq(t, history)
	assert.Len(t, seqs, 2)
	assert.NotContains(t, seqs, "c")
	assert.NotContains(t, seqs, "d")
	assert.Equal(t, 2, s.Completed())
}

func TestBindingFailureIsolatesBranches(t *testing.T) {
	g, err := graph.Compile([]core.TaskSpec{
		agentTask("a"),
		{ID: "bad", Agent: "worker", DependsOn: []string{"a"}, Input: "{{results.a.nonexistent}}"},
		agentTask("down", "bad"),
		agentTask("side", "a"),
	})
	require.NoError(t, err)

	mdl := model.NewMockModel("m").AddResponse(finalResponse).AddResponse(finalResponse)
	b := bus.New()
	s := New("proj", "react", g, workerAgents(mdl), tool.NewRegistry(), b)

	status := s.Run(context.Background())
	assert.Equal(t, core.RunCompleted, status)

	last := b.History()[len(b.History())-1]
	require.Equal(t, core.EventComplete, last.Type)
	require.Len(t, last.Results, 4)

	assert.Equal(t, core.TaskCompleted, last.Results["a"].Status)
	assert.Equal(t, core.TaskCompleted, last.Results["side"].Status)
	assert.Equal(t, core.TaskFailed, last.Results["bad"].Status)
	assert.Equal(t, core.TaskFailed, last.Results["down"].Status)
	assert.True(t, strings.Contains(last.Results["down"].Output, "dependency bad failed"))
	assert.Equal(t, 2, s.Completed())
}

func TestToolTasks(t *testing.T) {
	tools := tool.NewRegistry()
	require.NoError(t, tools.Register(tool.NewEchoTool()))
	require.NoError(t, tools.Register(tool.NewFunctionTool("broken", "Always fails", func(context.Context, string) (string, error) {
		return "", errors.New("no backend")
	})))

	g, err := graph.Compile([]core.TaskSpec{
		{ID: "say", Type: core.TaskTypeTool, Tool: "echo", Input: "hi"},
		{ID: "boom", Type: core.TaskTypeTool, Tool: "broken"},
	})
	require.NoError(t, err)

	b := bus.New()
	s := New("proj", "react", g, nil, tools, b)
	status := s.Run(context.Background())
	assert.Equal(t, core.RunCompleted, status)

	last := b.History()[len(b.History())-1]
	assert.Equal(t, "hi", last.Results["say"].Output)
	assert.Equal(t, core.TaskCompleted, last.Results["say"].Status)
	assert.Equal(t, core.TaskFailed, last.Results["boom"].Status)
}

// captureModel records the requests it receives and answers with a script.
type captureModel struct {
	mu       sync.Mutex
	requests []model.Request
}

func (m *captureModel) Generate(_ context.Context, req model.Request) (model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return model.Response{Text: finalResponse}, nil
}

func (m *captureModel) Info() model.Info { return model.Info{Name: "capture", Provider: "mock"} }

func TestInputTaskSuspendsAndResolvesBindings(t *testing.T) {
	g, err := graph.Compile([]core.TaskSpec{
		{ID: "intake", Type: core.TaskTypeInput, Description: "Who?", UI: &core.UIIntake{Fields: []core.UIField{{ID: "name", Required: true}}}},
		{ID: "greet", Agent: "worker", DependsOn: []string{"intake"}, Input: "hello {{inputs.intake.name}}"},
	})
	require.NoError(t, err)

	mdl := &captureModel{}
	b := bus.New()
	_, sub := b.Subscribe()
	defer sub.Close()

	s := New("proj", "react", g, workerAgents(mdl), tool.NewRegistry(), b)
	done := make(chan core.RunStatus, 1)
	go func() { done <- s.Run(context.Background()) }()

	// Wait for the input request, then submit the fields.
	deadline := time.After(5 * time.Second)
	for {
		var ev core.Event
		select {
		case ev = <-sub.C():
		case <-deadline:
			t.Fatal("no input request observed")
		}
		if ev.Type == core.EventInputRequest {
			assert.Equal(t, "intake", ev.TaskID)
			require.NotNil(t, ev.UI)
			break
		}
	}
	require.NoError(t, s.SubmitInput("intake", map[string]any{"name": "bob"}))

	status := <-done
	assert.Equal(t, core.RunCompleted, status)

	last := b.History()[len(b.History())-1]
	assert.Equal(t, core.TaskCompleted, last.Results["intake"].Status)
	assert.Equal(t, "bob", last.Results["intake"].Fields["name"])

	require.NotEmpty(t, mdl.requests)
	assert.Contains(t, mdl.requests[0].Messages[0].Content, "hello bob")
}

func TestSubmitInputUnknownTask(t *testing.T) {
	g, err := graph.Compile([]core.TaskSpec{
		{ID: "intake", Type: core.TaskTypeInput, UI: &core.UIIntake{Fields: []core.UIField{{ID: "x"}}}},
	})
	require.NoError(t, err)

	b := bus.New()
	s := New("proj", "react", g, nil, tool.NewRegistry(), b)
	done := make(chan core.RunStatus, 1)
	go func() { done <- s.Run(context.Background()) }()

	// Wait until the input task is suspended.
	_, sub := b.Subscribe()
	defer sub.Close()
	deadline := time.After(5 * time.Second)
	for {
		var ev core.Event
		select {
		case ev = <-sub.C():
		case <-deadline:
			t.Fatal("input task never suspended")
		}
		if ev.Type == core.EventInputRequest {
			break
		}
	}

	err = s.SubmitInput("ghost", map[string]any{})
	assert.Error(t, err)

	require.NoError(t, s.SubmitInput("intake", map[string]any{"x": 1}))
	<-done
}

func TestProviderFaultEndsRunWithError(t *testing.T) {
	g, err := graph.Compile([]core.TaskSpec{agentTask("a")})
	require.NoError(t, err)

	mdl := model.NewMockModel("m").AddError(errors.New("connection refused"))
	b := bus.New()
	s := New("proj", "react", g, workerAgents(mdl), tool.NewRegistry(), b)

	status := s.Run(context.Background())
	assert.Equal(t, core.RunError, status)

	history := b.History()
	last := history[len(history)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Contains(t, last.Message, "connection refused")
}

// gaugeModel tracks the maximum number of concurrent Generate calls.
type gaugeModel struct {
	mu      sync.Mutex
	current int
	max     int
}

func (m *gaugeModel) Generate(_ context.Context, _ model.Request) (model.Response, error) {
	m.mu.Lock()
	m.current++
	if m.current > m.max {
		m.max = m.current
	}
	m.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	m.mu.Lock()
	m.current--
	m.mu.Unlock()
	return model.Response{Text: finalResponse}, nil
}

func (m *gaugeModel) Info() model.Info { return model.Info{Name: "gauge", Provider: "mock"} }

func TestWorkerLimitBoundsParallelism(t *testing.T) {
	g, err := graph.Compile([]core.TaskSpec{
		agentTask("a"), agentTask("b"), agentTask("c"), agentTask("d"),
	})
	require.NoError(t, err)

	mdl := &gaugeModel{}
	b := bus.New()
	s := New("proj", "react", g, workerAgents(mdl), tool.NewRegistry(), b, func(o *Options) {
		o.WorkerLimit = 1
	})

	status := s.Run(context.Background())
	assert.Equal(t, core.RunCompleted, status)
	assert.Equal(t, 1, mdl.max)
}
