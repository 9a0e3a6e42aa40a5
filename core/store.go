package core

import "time"

// RunRecord is the durable shape of a run for RunStore implementations.
type RunRecord struct {
	RunID          string
	Project        string
	Engine         string
	ConfigPath     string
	RequestedPath  string
	Status         RunStatus
	TasksTotal     int
	TasksCompleted int
	StartedAt      time.Time
}

// RunStore persists runs and their event logs beyond process lifetime.
// It is an optional collaborator: a nil store means runs are retained in
// memory only. Implementations must be safe for concurrent use.
type RunStore interface {
	CreateRun(rec RunRecord) error
	UpdateRun(runID string, tasksCompleted int, status RunStatus) error
	AppendEvent(runID string, ev Event) error
	ListRuns() ([]RunRecord, error)
	ListEvents(runID string) ([]Event, error)
}
