package agent

import (
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/logging"
	"github.com/hupe1980/missionmesh/model"
	"github.com/hupe1980/missionmesh/tool"
)

// DefaultMaxIterations bounds the reasoning loop when the agent spec does not
// set its own limit.
const DefaultMaxIterations = 8

// DefaultModelTimeout bounds a single model-provider call.
const DefaultModelTimeout = 120 * time.Second

// UnknownToolError reports an action naming a tool outside the agent's
// capability set. It is recorded as a failed observation, never a run fault.
type UnknownToolError struct {
	Agent string
	Tool  string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("agent %q has no tool %q", e.Agent, e.Tool)
}

// Options configure optional Agent behavior.
type Options struct {
	Logger       *logging.MissionLogger
	ModelTimeout time.Duration
}

// Agent binds a model provider, a tool capability set and planning parameters
// under a name. Construction resolves the capability set once; unknown tool
// references surface here instead of mid-run.
type Agent struct {
	name         string
	description  string
	mdl          model.Model
	tools        map[string]tool.Tool
	toolOrder    []string
	planning     core.PlanningSpec
	logger       *logging.MissionLogger
	modelTimeout time.Duration
}

// New constructs an Agent from a spec, a model and the resolved tools.
func New(spec core.AgentSpec, mdl model.Model, tools []tool.Tool, optFns ...func(o *Options)) *Agent {
	opts := Options{
		ModelTimeout: DefaultModelTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	byName := make(map[string]tool.Tool, len(tools))
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
		names = append(names, t.Name())
	}
	sort.Strings(names)

	planning := spec.Planning
	if planning.MaxIterations <= 0 {
		planning.MaxIterations = DefaultMaxIterations
	}

	return &Agent{
		name:         spec.Name,
		description:  spec.Description,
		mdl:          mdl,
		tools:        byName,
		toolOrder:    names,
		planning:     planning,
		logger:       opts.Logger.WithComponent("agent").WithContext("agent", spec.Name),
		modelTimeout: opts.ModelTimeout,
	}
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.name }

// Tools returns the agent's capability set in sorted order.
func (a *Agent) Tools() []string {
	return append([]string(nil), a.toolOrder...)
}
