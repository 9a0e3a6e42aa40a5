package missionmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/missionmesh/config"
	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/model"
)

func TestMissionRunsEndToEnd(t *testing.T) {
	mesh := New(func(o *Options) {
		o.NewModel = func(_, name string) (model.Model, error) {
			return model.NewMockModel(name).
				AddResponse(`{"thought": "echo it", "action": "echo", "input": "{{static}}"}`).
				AddResponse(`{"thought": "done", "action": "final", "answer": "mission accomplished"}`), nil
		}
	})
	defer mesh.Close()

	mission, err := config.Parse([]byte(`
name: quickstart
defaults:
  provider: mock
  model: scripted
agents:
  worker:
    tools: [echo, current_time]
    planning:
      max_iterations: 4
tasks:
  - id: probe
    description: Probe the environment
    agent: worker
  - id: report
    description: Summarize the probe
    type: tool
    tool: echo
    depends_on: [probe]
    input: "result was: {{results.probe.output}}"
`), "/missions/quickstart.yaml")
	require.NoError(t, err)

	result, err := mesh.StartMission(context.Background(), mission, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := mesh.Wait(ctx, result.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, core.EventComplete, last.Type)
	assert.Equal(t, "mission accomplished", last.Results["probe"].Output)
	assert.Equal(t, "result was: mission accomplished", last.Results["report"].Output)

	assert.Eventually(t, func() bool {
		run, ok := mesh.Get(result.RunID)
		return ok && run.Status == core.RunCompleted && run.Progress() == 100
	}, 5*time.Second, 10*time.Millisecond)

	summaries := mesh.List()
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Completed)
}

func TestWaitOnFinishedRun(t *testing.T) {
	mesh := New(func(o *Options) {
		o.NewModel = func(_, name string) (model.Model, error) {
			return model.NewMockModel(name).
				AddResponse(`{"action": "final", "answer": "ok"}`), nil
		}
	})
	defer mesh.Close()

	mission, err := config.Parse([]byte(`
name: tiny
defaults:
  provider: mock
agents:
  worker: {tools: []}
tasks:
  - id: only
    agent: worker
`), "/missions/tiny.yaml")
	require.NoError(t, err)

	result, err := mesh.StartMission(context.Background(), mission, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	first, err := mesh.Wait(ctx, result.RunID)
	require.NoError(t, err)

	// A second Wait on the finished run replays the same terminal view.
	second, err := mesh.Wait(ctx, result.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, second)
	assert.Equal(t, first[len(first)-1].Seq, second[len(second)-1].Seq)
	assert.True(t, second[len(second)-1].Terminal())
}
