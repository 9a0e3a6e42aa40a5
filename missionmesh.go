// Package missionmesh provides a high-level façade over the run registry and
// its collaborators, enabling embedded use of the mission orchestrator. Most
// applications interact with this package by:
//  1. Creating a MissionMesh via New() (optionally supplying tools, a durable
//     store and a structured logger)
//  2. Starting missions from manifest files or parsed configurations
//  3. Subscribing to run event streams or draining runs synchronously
//
// The façade delegates orchestration to registry.Registry while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply a durable store and a
// structured logger.
package missionmesh

import (
	"context"

	"github.com/hupe1980/missionmesh/bus"
	"github.com/hupe1980/missionmesh/config"
	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/logging"
	"github.com/hupe1980/missionmesh/model"
	"github.com/hupe1980/missionmesh/registry"
	"github.com/hupe1980/missionmesh/tool"
)

// Options configures the MissionMesh instance.
type Options struct {
	// Tools available to missions. Defaults to the built-in set (echo,
	// current_time, http_fetch).
	Tools *tool.Registry

	// Store, when set, persists run records and event logs.
	Store core.RunStore

	// WorkerLimit bounds per-run task parallelism. Zero means full
	// graph-width parallelism.
	WorkerLimit int64

	// Logger defaults to a discarding logger if nil.
	Logger *logging.MissionLogger

	// NewModel overrides model construction, mainly for tests.
	NewModel func(provider, name string) (model.Model, error)
}

// MissionMesh is the high-level façade aggregating the registry and services.
type MissionMesh struct {
	opts     Options
	registry *registry.Registry
}

// New creates a MissionMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *MissionMesh {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry()
		_ = opts.Tools.Register(tool.NewEchoTool())
		_ = opts.Tools.Register(tool.NewClockTool())
		_ = opts.Tools.Register(tool.NewHTTPFetchTool(nil))
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	reg := registry.New(opts.Tools, func(o *registry.Options) {
		o.Logger = opts.Logger
		o.Store = opts.Store
		o.WorkerLimit = opts.WorkerLimit
		o.NewModel = opts.NewModel
	})

	return &MissionMesh{opts: opts, registry: reg}
}

// Registry exposes the underlying run registry for advanced callers (for
// example the HTTP server).
func (m *MissionMesh) Registry() *registry.Registry { return m.registry }

// Start launches a run for a mission manifest file.
func (m *MissionMesh) Start(ctx context.Context, configPath, engine string) (registry.StartResult, error) {
	return m.registry.Start(ctx, configPath, engine)
}

// StartMission launches a run for an already-parsed mission.
func (m *MissionMesh) StartMission(ctx context.Context, mission *config.Mission, engine string) (registry.StartResult, error) {
	return m.registry.StartMission(ctx, mission, engine)
}

// Stop requests cooperative cancellation of a run.
func (m *MissionMesh) Stop(runID string) bool { return m.registry.Stop(runID) }

// List returns summaries of all known runs.
func (m *MissionMesh) List() []core.RunSummary { return m.registry.List() }

// Get returns a snapshot of one run.
func (m *MissionMesh) Get(runID string) (*core.Run, bool) { return m.registry.Get(runID) }

// SubmitInput routes observer-supplied fields to a waiting input task.
func (m *MissionMesh) SubmitInput(runID, taskID string, fields map[string]any) error {
	return m.registry.SubmitInput(runID, taskID, fields)
}

// Subscribe attaches an observer to a run's event stream.
func (m *MissionMesh) Subscribe(runID string) ([]core.Event, *bus.Subscription, error) {
	return m.registry.Subscribe(runID)
}

// Wait drains a run's event stream until its terminal event and returns every
// observed event. It is a synchronous helper for embedded and CLI use.
func (m *MissionMesh) Wait(ctx context.Context, runID string) ([]core.Event, error) {
	snapshot, sub, err := m.Subscribe(runID)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	events := append([]core.Event(nil), snapshot...)
	if len(events) > 0 && events[len(events)-1].Terminal() {
		return events, nil
	}

	for {
		select {
		case <-ctx.Done():
			return events, ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return events, nil
			}
			events = append(events, ev)
			if ev.Terminal() {
				return events, nil
			}
		}
	}
}

// Close releases the registry actor. Stop runs before closing.
func (m *MissionMesh) Close() { m.registry.Close() }
