package messages

// EventType tags an AgentEvent.
type EventType string

const (
	EventReasoning          EventType = "reasoning"
	EventStepStart          EventType = "step_start"
	EventToolCall           EventType = "tool_call"
	EventToolResult         EventType = "tool_result"
	EventStepComplete       EventType = "step_complete"
	EventText               EventType = "text"
	EventCompactionStart    EventType = "compaction_start"
	EventCompactionComplete EventType = "compaction_complete"
	EventFinal              EventType = "final"
)

// Step statuses reported by step_complete events.
const (
	StepStatusOK         = "ok"
	StepStatusError      = "error"
	StepStatusInProgress = "in_progress"
	StepStatusCompleted  = "completed"
)

// AgentEvent is one element of the ordered event stream produced by a run.
// A run that terminates normally ends with exactly one EventFinal. Err is set
// only when the stream is aborted by a transport or cancellation failure; it
// is the last event delivered.
type AgentEvent struct {
	Type EventType `json:"type"`

	// Content carries text for reasoning, text, and final events.
	Content string `json:"content,omitempty"`

	// Step lifecycle fields. StepID ties step_start, tool_call,
	// tool_result, and step_complete of one tool invocation together.
	StepID   string    `json:"step_id,omitempty"`
	ToolName string    `json:"tool_name,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	Result   string    `json:"result,omitempty"`
	IsError  bool      `json:"is_error,omitempty"`
	Status   string    `json:"status,omitempty"`

	Err error `json:"-"`
}
