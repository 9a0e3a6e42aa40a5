package core

import "time"

// EventType tags the variant of an Event.
type EventType string

const (
	// EventPlan announces the task list of a freshly started run.
	EventPlan EventType = "plan"
	// EventStatus reports a task status transition.
	EventStatus EventType = "status"
	// EventConsole carries free-form progress text (tool observations,
	// captured output).
	EventConsole EventType = "console"
	// EventInputRequest asks observers to supply fields for an input task.
	EventInputRequest EventType = "input_request"
	// EventComplete is the terminal event of a completed or stopped run.
	EventComplete EventType = "complete"
	// EventError is the terminal event of a run that ended in a fault.
	EventError EventType = "error"
)

// PlanTask is the per-task summary embedded in a plan event.
type PlanTask struct {
	ID          string `json:"id"`
	Agent       string `json:"agent,omitempty"`
	Description string `json:"description"`
}

// Event is the unit of communication between a run and its observers.
// Immutable once emitted; the event bus assigns Seq and is the sole writer
// of a run's event log. The struct is flat with variant-specific fields
// left empty for other variants, which keeps the wire encoding stable for
// replay (late subscribers to the same run observe byte-identical
// sequences).
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// plan
	Project string     `json:"project,omitempty"`
	Engine  string     `json:"engine,omitempty"`
	Tasks   []PlanTask `json:"tasks,omitempty"`

	// status
	TaskID   string     `json:"task_id,omitempty"`
	Status   TaskStatus `json:"status,omitempty"`
	Output   string     `json:"output,omitempty"`
	Duration float64    `json:"duration,omitempty"`

	// console / error
	Message string `json:"message,omitempty"`

	// input_request
	Title string    `json:"title,omitempty"`
	UI    *UIIntake `json:"ui,omitempty"`

	// complete
	Results map[string]TaskResult `json:"results,omitempty"`
	Stopped bool                  `json:"stopped,omitempty"`
}

func newEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now().UTC()}
}

// NewPlanEvent constructs the plan announcement for a run.
func NewPlanEvent(project, engine string, tasks []TaskSpec) Event {
	e := newEvent(EventPlan)
	e.Project = project
	e.Engine = engine
	e.Tasks = make([]PlanTask, 0, len(tasks))
	for _, t := range tasks {
		e.Tasks = append(e.Tasks, PlanTask{ID: t.ID, Agent: t.Agent, Description: t.Description})
	}
	return e
}

// NewStatusEvent reports a task transitioning to the given status.
func NewStatusEvent(taskID string, status TaskStatus) Event {
	e := newEvent(EventStatus)
	e.TaskID = taskID
	e.Status = status
	return e
}

// NewTerminalStatusEvent reports a terminal task status together with the
// task output and elapsed duration in seconds.
func NewTerminalStatusEvent(taskID string, status TaskStatus, output string, duration float64) Event {
	e := NewStatusEvent(taskID, status)
	e.Output = output
	e.Duration = duration
	return e
}

// NewConsoleEvent carries free-form progress text, optionally attributed to
// a task.
func NewConsoleEvent(taskID, message string) Event {
	e := newEvent(EventConsole)
	e.TaskID = taskID
	e.Message = message
	return e
}

// NewInputRequestEvent asks observers to submit the declared fields for an
// input task.
func NewInputRequestEvent(taskID, title string, ui *UIIntake) Event {
	e := newEvent(EventInputRequest)
	e.TaskID = taskID
	e.Title = title
	e.UI = ui
	return e
}

// NewCompleteEvent is the terminal event for completed and stopped runs.
func NewCompleteEvent(results map[string]TaskResult, duration float64, stopped bool) Event {
	e := newEvent(EventComplete)
	e.Results = results
	e.Duration = duration
	e.Stopped = stopped
	return e
}

// NewErrorEvent is the terminal event for runs ending in a fault.
func NewErrorEvent(message string) Event {
	e := newEvent(EventError)
	e.Message = message
	return e
}

// Terminal reports whether this event ends its run's stream.
func (e Event) Terminal() bool { return e.Type == EventComplete || e.Type == EventError }
