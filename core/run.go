package core

import (
	"maps"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	// RunPending means the run has been registered but not yet scheduled.
	RunPending RunStatus = "pending"
	// RunRunning means the scheduler is driving the run's graph.
	RunRunning RunStatus = "running"
	// RunCompleted means every task reached a terminal state.
	RunCompleted RunStatus = "completed"
	// RunStopped means cancellation was requested and honored.
	RunStopped RunStatus = "stopped"
	// RunError means the run ended with an unrecoverable fault.
	RunError RunStatus = "error"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunStopped || s == RunError
}

// Run is one execution instance of a compiled mission graph. The scheduler
// owns all writes; the registry replaces whole snapshots atomically, so
// readers always observe a consistent Run.
type Run struct {
	ID             string                `json:"run_id"`
	Project        string                `json:"project"`
	Engine         string                `json:"engine"`
	ConfigPath     string                `json:"config_path"`
	RequestedPath  string                `json:"request_path,omitempty"`
	Status         RunStatus             `json:"status"`
	TasksTotal     int                   `json:"tasks_total"`
	TasksCompleted int                   `json:"tasks_completed"`
	StartedAt      time.Time             `json:"started_at"`
	Results        map[string]TaskResult `json:"results,omitempty"`
}

// Clone returns a deep copy so registry snapshots cannot be mutated by
// concurrent readers.
func (r *Run) Clone() *Run {
	c := *r
	if r.Results != nil {
		c.Results = make(map[string]TaskResult, len(r.Results))
		maps.Copy(c.Results, r.Results)
	}
	return &c
}

// Progress derives the completion percentage in [0,100].
func (r *Run) Progress() int {
	if r.TasksTotal == 0 {
		return 0
	}
	return r.TasksCompleted * 100 / r.TasksTotal
}

// RunSummary is the listing shape exposed by the control surface.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	Project        string    `json:"project"`
	Engine         string    `json:"engine"`
	StartedAt      time.Time `json:"started_at"`
	TasksCompleted int       `json:"tasks_completed"`
	TasksTotal     int       `json:"tasks_total"`
	Progress       int       `json:"progress"`
	Completed      bool      `json:"completed"`
	ConfigPath     string    `json:"config_path"`
}

// Summary derives the listing shape from a run snapshot.
func (r *Run) Summary() RunSummary {
	return RunSummary{
		RunID:          r.ID,
		Project:        r.Project,
		Engine:         r.Engine,
		StartedAt:      r.StartedAt,
		TasksCompleted: r.TasksCompleted,
		TasksTotal:     r.TasksTotal,
		Progress:       r.Progress(),
		Completed:      r.Status.Terminal(),
		ConfigPath:     r.ConfigPath,
	}
}
