// Package registry holds the process-wide table of in-flight and finished
// runs. A single goroutine owns the table and serializes every mutation
// through a command channel, so concurrent starts, stops, listings and input
// submissions never race. Duplicate submissions of the same mission manifest
// collapse onto the already-active run.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/missionmesh/agent"
	"github.com/hupe1980/missionmesh/bus"
	"github.com/hupe1980/missionmesh/config"
	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/graph"
	"github.com/hupe1980/missionmesh/internal/util"
	"github.com/hupe1980/missionmesh/logging"
	"github.com/hupe1980/missionmesh/metrics"
	"github.com/hupe1980/missionmesh/model"
	"github.com/hupe1980/missionmesh/scheduler"
	"github.com/hupe1980/missionmesh/tool"
)

// StartResult is the control surface's answer to a start request.
type StartResult struct {
	RunID          string `json:"run_id"`
	Project        string `json:"project"`
	AlreadyRunning bool   `json:"already_running"`
}

// Options configure optional Registry behavior.
type Options struct {
	Logger *logging.MissionLogger
	// Store, when set, persists run records and event logs.
	Store core.RunStore
	// WorkerLimit bounds per-run task parallelism. Zero means unbounded.
	WorkerLimit int64
	// NewModel builds a model for a provider name. Defaults to config.NewModel.
	NewModel func(provider, name string) (model.Model, error)
}

// Registry is the actor owning the run table.
type Registry struct {
	tools     *tool.Registry
	logger    *logging.MissionLogger
	store     core.RunStore
	opts      Options
	commands  chan command
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type runEntry struct {
	run   *core.Run
	bus   *bus.Bus
	sched *scheduler.Scheduler
}

type command func(runs map[string]*runEntry)

// New constructs a Registry and starts its actor goroutine. Close releases it.
func New(tools *tool.Registry, optFns ...func(o *Options)) *Registry {
	opts := Options{NewModel: config.NewModel}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.NewModel == nil {
		opts.NewModel = config.NewModel
	}

	r := &Registry{
		tools:    tools,
		logger:   opts.Logger.WithComponent("registry"),
		store:    opts.Store,
		opts:     opts,
		commands: make(chan command),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.loop()
	if r.store != nil {
		r.restore()
	}
	return r
}

// loop is the actor: the only goroutine that touches the run table.
func (r *Registry) loop() {
	runs := make(map[string]*runEntry)
	for {
		select {
		case cmd := <-r.commands:
			cmd(runs)
		case <-r.quit:
			close(r.done)
			return
		}
	}
}

// Close shuts the actor down. Running schedulers keep executing; Close is
// meant for process teardown after stopping runs explicitly. Safe to call
// more than once; commands arriving after Close, such as hooks of a still
// draining scheduler, become no-ops.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
}

func (r *Registry) do(cmd func(runs map[string]*runEntry)) {
	ack := make(chan struct{})
	wrapped := func(runs map[string]*runEntry) {
		cmd(runs)
		close(ack)
	}
	select {
	case r.commands <- wrapped:
		<-ack
	case <-r.done:
	}
}

// Start loads the manifest, compiles its graph and launches a scheduler for
// it. Starting a manifest that already has an active run returns that run's
// id with AlreadyRunning set instead of creating a duplicate. ctx gates the
// synchronous load/compile/register phase only; the launched run is owned by
// the registry and ends on Stop or a fault, not on ctx cancellation.
func (r *Registry) Start(ctx context.Context, path, engine string) (StartResult, error) {
	mission, err := config.Load(path)
	if err != nil {
		return StartResult{}, err
	}
	return r.startMission(ctx, mission, path, engine)
}

// StartMission is Start for an already-parsed manifest.
func (r *Registry) StartMission(ctx context.Context, mission *config.Mission, engine string) (StartResult, error) {
	return r.startMission(ctx, mission, mission.Path, engine)
}

func (r *Registry) startMission(ctx context.Context, mission *config.Mission, requestedPath, engine string) (StartResult, error) {
	if err := ctx.Err(); err != nil {
		return StartResult{}, err
	}
	if engine == "" {
		engine = mission.Engine
	}

	g, err := graph.Compile(mission.Tasks)
	if err != nil {
		return StartResult{}, err
	}

	agents, err := r.buildAgents(mission, engine)
	if err != nil {
		return StartResult{}, err
	}

	var result StartResult
	var startErr error
	r.do(func(runs map[string]*runEntry) {
		// Duplicate collapse: one active run per manifest path. Inline
		// missions carry no path and never collapse.
		if mission.Path != "" {
			for _, entry := range runs {
				if entry.run.ConfigPath == mission.Path && !entry.run.Status.Terminal() {
					result = StartResult{RunID: entry.run.ID, Project: entry.run.Project, AlreadyRunning: true}
					return
				}
			}
		}

		run := &core.Run{
			ID:            util.NewID(),
			Project:       mission.Name,
			Engine:        engine,
			ConfigPath:    mission.Path,
			RequestedPath: requestedPath,
			Status:        core.RunRunning,
			TasksTotal:    g.Len(),
			StartedAt:     time.Now().UTC(),
		}

		entry := &runEntry{run: run, bus: bus.New()}
		entry.sched = scheduler.New(
			mission.Name, engine, g, agents, r.tools, entry.bus,
			func(o *scheduler.Options) {
				o.WorkerLimit = r.opts.WorkerLimit
				o.Logger = r.logger.WithRun(run.ID)
				o.Hooks = r.hooks(run.ID)
			},
		)
		runs[run.ID] = entry

		if r.store != nil {
			if err := r.store.CreateRun(runRecord(run)); err != nil {
				startErr = fmt.Errorf("persist run: %w", err)
				delete(runs, run.ID)
				return
			}
		}
		r.observeEvents(run.ID, entry.bus)

		metrics.RunsStarted.Inc()
		metrics.ActiveRuns.Inc()
		r.logger.Info("run %s started for mission %s", run.ID, mission.Name)
		// The run outlives the start request, so the scheduler gets its own
		// lifetime context: only an explicit Stop or a fault ends it.
		go entry.sched.Run(context.Background())

		result = StartResult{RunID: run.ID, Project: run.Project}
	})
	return result, startErr
}

// restore reloads persisted runs into the table and replays their event logs
// into fresh buses, so observers of finished runs survive a process restart.
// A run persisted as still active lost its scheduler with the old process
// and is finalized as an error.
func (r *Registry) restore() {
	recs, err := r.store.ListRuns()
	if err != nil {
		r.logger.Warn("reload persisted runs: %s", err.Error())
		return
	}
	for _, rec := range recs {
		events, err := r.store.ListEvents(rec.RunID)
		if err != nil {
			r.logger.Warn("reload events for run %s: %s", rec.RunID, err.Error())
			continue
		}

		run := &core.Run{
			ID:             rec.RunID,
			Project:        rec.Project,
			Engine:         rec.Engine,
			ConfigPath:     rec.ConfigPath,
			RequestedPath:  rec.RequestedPath,
			Status:         rec.Status,
			TasksTotal:     rec.TasksTotal,
			TasksCompleted: rec.TasksCompleted,
			StartedAt:      rec.StartedAt,
		}

		b := bus.New()
		var last core.Event
		for _, ev := range events {
			last = b.Publish(ev)
			if last.Type == core.EventComplete {
				run.Results = last.Results
			}
		}

		if !run.Status.Terminal() {
			// Reconcile from the log tail first: the process may have died
			// between appending the terminal event and updating the record.
			switch {
			case last.Type == core.EventError:
				run.Status = core.RunError
			case last.Type == core.EventComplete && last.Stopped:
				run.Status = core.RunStopped
			case last.Type == core.EventComplete:
				run.Status = core.RunCompleted
			default:
				run.Status = core.RunError
				ev := b.Publish(core.NewErrorEvent("run interrupted by process restart"))
				if err := r.store.AppendEvent(rec.RunID, ev); err != nil {
					r.logger.Warn("persist event %d for run %s: %s", ev.Seq, rec.RunID, err.Error())
				}
			}
			if err := r.store.UpdateRun(rec.RunID, run.TasksCompleted, run.Status); err != nil {
				r.logger.Warn("persist terminal state for run %s: %s", rec.RunID, err.Error())
			}
		}

		entry := &runEntry{run: run, bus: b}
		r.do(func(runs map[string]*runEntry) { runs[rec.RunID] = entry })
		r.logger.Info("run %s restored with status %s", rec.RunID, string(run.Status))
	}
}

// hooks wires scheduler progress back into the run table under the actor.
func (r *Registry) hooks(runID string) scheduler.Hooks {
	return scheduler.Hooks{
		OnTaskTerminal: func(taskID string, res core.TaskResult, completed int) {
			r.do(func(runs map[string]*runEntry) {
				entry, ok := runs[runID]
				if !ok {
					return
				}
				next := entry.run.Clone()
				next.TasksCompleted = completed
				if next.Results == nil {
					next.Results = make(map[string]core.TaskResult)
				}
				next.Results[taskID] = res
				entry.run = next
			})
			metrics.TasksFinished.WithLabelValues(string(res.Status)).Inc()
			if r.store != nil {
				if err := r.store.UpdateRun(runID, completed, core.RunRunning); err != nil {
					r.logger.Warn("persist progress for run %s: %s", runID, err.Error())
				}
			}
		},
		OnFinished: func(status core.RunStatus, results map[string]core.TaskResult) {
			var completed int
			r.do(func(runs map[string]*runEntry) {
				entry, ok := runs[runID]
				if !ok {
					return
				}
				next := entry.run.Clone()
				next.Status = status
				next.Results = results
				entry.run = next
				completed = next.TasksCompleted
			})
			metrics.RunsFinished.WithLabelValues(string(status)).Inc()
			metrics.ActiveRuns.Dec()
			if r.store != nil {
				if err := r.store.UpdateRun(runID, completed, status); err != nil {
					r.logger.Warn("persist terminal state for run %s: %s", runID, err.Error())
				}
			}
			r.logger.Info("run %s finished with status %s", runID, string(status))
		},
	}
}

// observeEvents mirrors the run's event stream into metrics and, when a
// store is configured, into the durable log. The subscription ends with the
// terminal event, closing the goroutine.
func (r *Registry) observeEvents(runID string, b *bus.Bus) {
	_, sub := b.Subscribe()
	go func() {
		for ev := range sub.C() {
			metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
			if r.store != nil {
				if err := r.store.AppendEvent(runID, ev); err != nil {
					r.logger.Warn("persist event %d for run %s: %s", ev.Seq, runID, err.Error())
				}
			}
		}
	}()
}

// buildAgents resolves every agent spec against the tool registry and the
// model provider factory. Unknown tools or providers fail the start request.
func (r *Registry) buildAgents(mission *config.Mission, engine string) (map[string]*agent.Agent, error) {
	out := make(map[string]*agent.Agent)
	for _, spec := range mission.AgentSpecs(engine) {
		mdl, err := r.opts.NewModel(spec.Provider, spec.Model)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		tools, err := r.tools.Select(spec.Tools)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		out[spec.Name] = agent.New(spec, mdl, tools, func(o *agent.Options) {
			o.Logger = r.opts.Logger
		})
	}
	return out, nil
}

// Stop requests cooperative cancellation of a run. It acknowledges when the
// run exists and is still active.
func (r *Registry) Stop(runID string) bool {
	var acknowledged bool
	r.do(func(runs map[string]*runEntry) {
		entry, ok := runs[runID]
		if !ok || entry.sched == nil || entry.run.Status.Terminal() {
			return
		}
		entry.sched.Stop()
		acknowledged = true
	})
	return acknowledged
}

// Get returns a snapshot of one run.
func (r *Registry) Get(runID string) (*core.Run, bool) {
	var run *core.Run
	r.do(func(runs map[string]*runEntry) {
		if entry, ok := runs[runID]; ok {
			run = entry.run.Clone()
		}
	})
	return run, run != nil
}

// List returns summaries of all known runs, newest first.
func (r *Registry) List() []core.RunSummary {
	var out []core.RunSummary
	r.do(func(runs map[string]*runEntry) {
		for _, entry := range runs {
			out = append(out, entry.run.Summary())
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Subscribe attaches an observer to a run's event stream.
func (r *Registry) Subscribe(runID string) ([]core.Event, *bus.Subscription, error) {
	var b *bus.Bus
	r.do(func(runs map[string]*runEntry) {
		if entry, ok := runs[runID]; ok {
			b = entry.bus
		}
	})
	if b == nil {
		return nil, nil, fmt.Errorf("unknown run %q", runID)
	}
	snapshot, sub := b.Subscribe()
	return snapshot, sub, nil
}

// SubmitInput routes observer-supplied fields to a task waiting for input.
func (r *Registry) SubmitInput(runID, taskID string, fields map[string]any) error {
	var sched *scheduler.Scheduler
	var found bool
	r.do(func(runs map[string]*runEntry) {
		if entry, ok := runs[runID]; ok {
			found = true
			sched = entry.sched
		}
	})
	if !found {
		return fmt.Errorf("unknown run %q", runID)
	}
	if sched == nil {
		return fmt.Errorf("run %q is not accepting input", runID)
	}
	return sched.SubmitInput(taskID, fields)
}

func runRecord(run *core.Run) core.RunRecord {
	return core.RunRecord{
		RunID:          run.ID,
		Project:        run.Project,
		Engine:         run.Engine,
		ConfigPath:     run.ConfigPath,
		RequestedPath:  run.RequestedPath,
		Status:         run.Status,
		TasksTotal:     run.TasksTotal,
		TasksCompleted: run.TasksCompleted,
		StartedAt:      run.StartedAt,
	}
}
