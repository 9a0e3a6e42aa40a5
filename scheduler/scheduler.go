// Package scheduler drives a compiled task graph to completion: it launches
// every task whose dependencies are satisfied, resolves input bindings
// against recorded outputs, isolates per-task failures from independent
// branches, and reports progress through the run's event bus.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/missionmesh/agent"
	"github.com/hupe1980/missionmesh/bus"
	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/graph"
	"github.com/hupe1980/missionmesh/logging"
	"github.com/hupe1980/missionmesh/tool"
)

// DefaultToolTimeout bounds one direct tool-task invocation.
const DefaultToolTimeout = 5 * time.Minute

// Hooks let the owner of a run (the registry) observe scheduler progress
// without sharing mutable state. Both callbacks are invoked from the
// scheduler goroutine and must not block.
type Hooks struct {
	// OnTaskTerminal fires when a task reaches completed or failed.
	// completed is the running count of successfully completed tasks.
	OnTaskTerminal func(taskID string, result core.TaskResult, completed int)
	// OnFinished fires exactly once with the run's terminal status.
	OnFinished func(status core.RunStatus, results map[string]core.TaskResult)
}

// Options configure optional Scheduler behavior.
type Options struct {
	// WorkerLimit bounds tasks executing concurrently within this run.
	// Zero means full graph-width parallelism.
	WorkerLimit int64
	ToolTimeout time.Duration
	Logger      *logging.MissionLogger
	Hooks       Hooks
}

// Scheduler executes one run. It owns all run-internal state: task statuses,
// recorded results and submitted inputs are mutated only from the Run
// goroutine, so no locking is needed beyond the channels used to talk to it.
type Scheduler struct {
	project string
	engine  string
	graph   *graph.RunGraph
	agents  map[string]*agent.Agent
	tools   *tool.Registry
	bus     *bus.Bus
	logger  *logging.MissionLogger
	opts    Options

	stopCh chan struct{}
	doneCh chan struct{}
	inputs chan inputSubmission

	// Owned by the Run goroutine.
	status    map[string]core.TaskStatus
	results   map[string]core.TaskResult
	submitted map[string]map[string]any
	completed int

	// Routed to the goroutine of a suspended input task.
	waiters map[string]chan map[string]any
}

type inputSubmission struct {
	taskID string
	fields map[string]any
	reply  chan error
}

type outcome struct {
	taskID  string
	result  core.TaskResult
	aborted bool
	fatal   error
}

// New constructs a Scheduler for one compiled graph.
func New(
	project, engine string,
	g *graph.RunGraph,
	agents map[string]*agent.Agent,
	tools *tool.Registry,
	eventBus *bus.Bus,
	optFns ...func(o *Options),
) *Scheduler {
	opts := Options{ToolTimeout: DefaultToolTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	return &Scheduler{
		project:   project,
		engine:    engine,
		graph:     g,
		agents:    agents,
		tools:     tools,
		bus:       eventBus,
		logger:    opts.Logger.WithComponent("scheduler"),
		opts:      opts,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		inputs:    make(chan inputSubmission),
		status:    make(map[string]core.TaskStatus, g.Len()),
		results:   make(map[string]core.TaskResult, g.Len()),
		submitted: make(map[string]map[string]any),
		waiters:   make(map[string]chan map[string]any),
	}
}

// Stop requests cooperative cancellation: no new tasks are launched and
// in-flight reasoning loops abort at their next suspension point. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// SubmitInput delivers observer-supplied fields to a task suspended in
// waiting_input state. It fails when no task with that id is waiting.
func (s *Scheduler) SubmitInput(taskID string, fields map[string]any) error {
	sub := inputSubmission{taskID: taskID, fields: fields, reply: make(chan error, 1)}
	select {
	case s.inputs <- sub:
		return <-sub.reply
	case <-s.stopCh:
		return fmt.Errorf("run is stopping")
	case <-s.doneCh:
		return fmt.Errorf("run already finished")
	}
}

// Run executes the graph and returns the run's terminal status. It publishes
// the plan, every status transition and exactly one terminal event (complete
// or error); after Run returns no further events appear on the bus.
func (s *Scheduler) Run(ctx context.Context) core.RunStatus {
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sem *semaphore.Weighted
	if s.opts.WorkerLimit > 0 {
		sem = semaphore.NewWeighted(s.opts.WorkerLimit)
	}

	tasks := s.graph.Tasks()
	s.bus.Publish(core.NewPlanEvent(s.project, s.engine, tasks))
	for _, t := range tasks {
		s.status[t.ID] = core.TaskPending
		s.bus.Publish(core.NewStatusEvent(t.ID, core.TaskPending))
	}

	done := make(chan outcome)
	inflight := 0
	stopped := false
	var fatal error

	// Disabled (set to nil) once they fire so the select blocks on done
	// instead of spinning.
	stopC := s.stopCh
	ctxDone := ctx.Done()

	for {
		if !stopped && fatal == nil {
			// Dispatch until the ready set settles: a binding failure here
			// fails downstream tasks synchronously, which can expose further
			// blocked tasks.
			for {
				s.failBlockedTasks()
				ready := s.readyTasks()
				if len(ready) == 0 {
					break
				}
				failedHere := false
				for _, t := range ready {
					input, err := graph.ResolveInput(t.ID, t.Input, s.results, s.submitted)
					if err != nil {
						s.finishTask(t.ID, core.TaskResult{
							Output: err.Error(),
							Status: core.TaskFailed,
						})
						failedHere = true
						continue
					}
					s.status[t.ID] = core.TaskThinking
					var waiter chan map[string]any
					if t.Kind() == core.TaskTypeInput {
						// Registered here so the waiters map stays owned by
						// this goroutine; routeInput runs here too.
						waiter = make(chan map[string]any, 1)
						s.waiters[t.ID] = waiter
					}
					inflight++
					go s.execute(runCtx, t, input, waiter, sem, done)
				}
				if !failedHere {
					break
				}
			}
		}

		if inflight == 0 {
			break
		}

		select {
		case out := <-done:
			inflight--
			if out.fatal != nil && fatal == nil {
				fatal = out.fatal
				cancel()
			}
			if out.aborted || out.fatal != nil {
				continue
			}
			s.finishTask(out.taskID, out.result)
		case sub := <-s.inputs:
			sub.reply <- s.routeInput(sub.taskID, sub.fields)
		case <-stopC:
			stopped = true
			stopC = nil
			cancel()
		case <-ctxDone:
			stopped = true
			ctxDone = nil
		}
	}

	close(s.doneCh)
	duration := time.Since(start).Seconds()
	status := s.finalize(fatal, stopped, duration)
	if s.opts.Hooks.OnFinished != nil {
		s.opts.Hooks.OnFinished(status, s.resultsCopy())
	}
	return status
}

// readyTasks returns pending tasks whose every dependency has completed.
func (s *Scheduler) readyTasks() []core.TaskSpec {
	var out []core.TaskSpec
	for _, t := range s.graph.Tasks() {
		if s.status[t.ID] != core.TaskPending {
			continue
		}
		ready := true
		for _, dep := range s.graph.Dependencies(t.ID) {
			if s.status[dep] != core.TaskCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t)
		}
	}
	return out
}

// failBlockedTasks propagates failure to pending tasks with a failed
// dependency. Independent branches keep running. Repeats until the cascade
// settles so chains fail in one dispatch cycle.
func (s *Scheduler) failBlockedTasks() {
	for {
		changed := false
		for _, t := range s.graph.Tasks() {
			if s.status[t.ID] != core.TaskPending {
				continue
			}
			for _, dep := range s.graph.Dependencies(t.ID) {
				if s.status[dep] == core.TaskFailed {
					s.finishTask(t.ID, core.TaskResult{
						Output: fmt.Sprintf("dependency %s failed", dep),
						Status: core.TaskFailed,
					})
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

// finishTask records a terminal result, publishes the terminal status event
// and notifies the owner. Runs on the scheduler goroutine only.
func (s *Scheduler) finishTask(taskID string, result core.TaskResult) {
	s.status[taskID] = result.Status
	s.results[taskID] = result
	if result.Status == core.TaskCompleted {
		s.completed++
		if len(result.Fields) > 0 {
			s.submitted[taskID] = result.Fields
		}
	}
	s.bus.Publish(core.NewTerminalStatusEvent(taskID, result.Status, result.Output, result.Duration))
	s.logger.LogTaskRun(taskID, string(result.Status), time.Duration(result.Duration*float64(time.Second)), nil)
	if s.opts.Hooks.OnTaskTerminal != nil {
		s.opts.Hooks.OnTaskTerminal(taskID, result, s.completed)
	}
}

// routeInput hands submitted fields to the goroutine of a waiting input task.
func (s *Scheduler) routeInput(taskID string, fields map[string]any) error {
	waiter, ok := s.waiters[taskID]
	if !ok {
		return fmt.Errorf("task %q is not waiting for input", taskID)
	}
	delete(s.waiters, taskID)
	waiter <- fields
	return nil
}

// execute runs one task to a terminal outcome on its own goroutine.
func (s *Scheduler) execute(ctx context.Context, t core.TaskSpec, input any, waiter chan map[string]any, sem *semaphore.Weighted, done chan<- outcome) {
	if sem != nil && t.Kind() != core.TaskTypeInput {
		if err := sem.Acquire(ctx, 1); err != nil {
			done <- outcome{taskID: t.ID, aborted: true}
			return
		}
		defer sem.Release(1)
	}

	start := time.Now()
	var out outcome
	switch t.Kind() {
	case core.TaskTypeInput:
		out = s.executeInput(ctx, t, waiter)
	case core.TaskTypeTool:
		out = s.executeTool(ctx, t, input)
	default:
		out = s.executeAgent(ctx, t, input)
	}
	out.taskID = t.ID
	if !out.aborted && out.fatal == nil {
		out.result.Duration = time.Since(start).Seconds()
	}
	done <- out
}

// executeAgent delegates to the task's reasoning loop. Cancellation aborts
// silently; any other loop error is a provider fault fatal to the run.
func (s *Scheduler) executeAgent(ctx context.Context, t core.TaskSpec, input any) outcome {
	a, ok := s.agents[t.Agent]
	if !ok {
		return outcome{result: core.TaskResult{
			Output: fmt.Sprintf("no agent %q configured", t.Agent),
			Status: core.TaskFailed,
		}}
	}

	answer, err := a.Execute(ctx, t, inputText(input), func(ev core.Event) { s.bus.Publish(ev) })
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return outcome{aborted: true}
		}
		return outcome{fatal: err}
	}

	return outcome{result: core.TaskResult{Output: answer, Status: core.TaskCompleted}}
}

// executeTool invokes a registered tool directly. A tool failure fails the
// task, not the run.
func (s *Scheduler) executeTool(ctx context.Context, t core.TaskSpec, input any) outcome {
	s.bus.Publish(core.NewStatusEvent(t.ID, core.TaskThinking))

	tl, ok := s.tools.Get(t.Tool)
	if !ok {
		return outcome{result: core.TaskResult{
			Output: fmt.Sprintf("no tool %q registered", t.Tool),
			Status: core.TaskFailed,
		}}
	}

	callCtx := ctx
	if s.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.ToolTimeout)
		defer cancel()
	}

	output, err := tl.Invoke(callCtx, inputText(input))
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return outcome{aborted: true}
		}
		return outcome{result: core.TaskResult{Output: err.Error(), Status: core.TaskFailed}}
	}

	return outcome{result: core.TaskResult{Output: output, Status: core.TaskCompleted}}
}

// executeInput suspends until an observer submits the requested fields. The
// submitted fields become both the task result and binding material for
// downstream {{inputs.<task>.<field>}} references.
func (s *Scheduler) executeInput(ctx context.Context, t core.TaskSpec, waiter chan map[string]any) outcome {
	s.bus.Publish(core.NewStatusEvent(t.ID, core.TaskWaitingInput))
	s.bus.Publish(core.NewInputRequestEvent(t.ID, t.Description, t.UI))

	select {
	case fields := <-waiter:
		raw, err := json.Marshal(fields)
		if err != nil {
			raw = []byte(fmt.Sprintf("%v", fields))
		}
		return outcome{result: core.TaskResult{
			Output: string(raw),
			Status: core.TaskCompleted,
			Fields: fields,
		}}
	case <-ctx.Done():
		return outcome{aborted: true}
	}
}

// finalize publishes the run's terminal event and derives its status.
func (s *Scheduler) finalize(fatal error, stopped bool, duration float64) core.RunStatus {
	switch {
	case fatal != nil:
		s.logger.Error("run failed: %s", fatal.Error())
		s.bus.Publish(core.NewErrorEvent(fatal.Error()))
		return core.RunError
	case stopped:
		s.bus.Publish(core.NewCompleteEvent(s.resultsCopy(), duration, true))
		return core.RunStopped
	default:
		s.bus.Publish(core.NewCompleteEvent(s.resultsCopy(), duration, false))
		return core.RunCompleted
	}
}

func (s *Scheduler) resultsCopy() map[string]core.TaskResult {
	out := make(map[string]core.TaskResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// Completed returns the count of successfully completed tasks.
func (s *Scheduler) Completed() int { return s.completed }

func inputText(input any) string {
	switch v := input.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
