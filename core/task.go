package core

// TaskType distinguishes how the scheduler executes a task.
type TaskType string

const (
	// TaskTypeAgent delegates the task to an agent reasoning loop.
	TaskTypeAgent TaskType = "agent"
	// TaskTypeTool invokes a registered tool directly, without a model.
	TaskTypeTool TaskType = "tool"
	// TaskTypeInput pauses the run until an observer submits the requested
	// fields through the control surface.
	TaskTypeInput TaskType = "input"
)

// TaskStatus is the externally visible state of a task within a run.
type TaskStatus string

const (
	// TaskPending means the task has not been launched yet.
	TaskPending TaskStatus = "pending"
	// TaskThinking means the task is executing (model or tool work in flight).
	TaskThinking TaskStatus = "thinking"
	// TaskWaitingInput means the task is suspended awaiting external input.
	TaskWaitingInput TaskStatus = "waiting_input"
	// TaskCompleted is the terminal success state.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed is the terminal failure state.
	TaskFailed TaskStatus = "failed"
)

// Terminal reports whether the status is one of the two terminal states.
func (s TaskStatus) Terminal() bool { return s == TaskCompleted || s == TaskFailed }

// UIField describes one field requested from an observer by an input task.
type UIField struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// UIIntake declares the fields an input task collects before it completes.
type UIIntake struct {
	Fields []UIField `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// TaskSpec is one unit of work in a mission graph. Immutable once compiled.
type TaskSpec struct {
	ID          string    `json:"id" yaml:"id"`
	Description string    `json:"description" yaml:"description"`
	Type        TaskType  `json:"type,omitempty" yaml:"type,omitempty"`
	Agent       string    `json:"agent,omitempty" yaml:"agent,omitempty"`
	Tool        string    `json:"tool,omitempty" yaml:"tool,omitempty"`
	DependsOn   []string  `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Input       any       `json:"input,omitempty" yaml:"input,omitempty"`
	UI          *UIIntake `json:"ui,omitempty" yaml:"ui,omitempty"`
}

// Kind returns the effective task type, defaulting to agent execution.
func (t TaskSpec) Kind() TaskType {
	if t.Type == "" {
		return TaskTypeAgent
	}
	return t.Type
}

// PlanningSpec holds the reasoning loop parameters of an agent.
type PlanningSpec struct {
	MaxIterations int  `json:"max_iterations" yaml:"max_iterations"`
	Reflection    bool `json:"reflection" yaml:"reflection"`
}

// AgentSpec names a bundle of model provider, capability set and planning
// parameters that tasks can be assigned to.
type AgentSpec struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Provider    string       `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string       `json:"model,omitempty" yaml:"model,omitempty"`
	Tools       []string     `json:"tools" yaml:"tools"`
	Planning    PlanningSpec `json:"planning" yaml:"planning"`
}

// TaskResult records the outcome of one task inside a run.
type TaskResult struct {
	Output   string         `json:"output"`
	Duration float64        `json:"duration"`
	Status   TaskStatus     `json:"status"`
	Fields   map[string]any `json:"fields,omitempty"`
}
