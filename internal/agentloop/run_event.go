package agentloop

import "encoding/json"

type State string

const (
	StateIdle          State = "idle"
	StateAwaitingModel State = "awaiting_model"
	StateDispatching   State = "dispatching"
	StateDone          State = "done"
	StateAborted       State = "aborted"
	StateFailed        State = "failed"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}

const (
	EventIterationStart = "iteration.start"
	EventCompletion     = "completion"
	EventToolStart      = "tool.start"
	EventToolOutput     = "tool.output"
	EventToolError      = "tool.error"
	EventRawRequest     = "completion.request.raw"
	EventRawResponse    = "completion.response.raw"
	EventDone           = "done"
	EventAborted        = "aborted"
	EventFailed         = "failed"
)

// RunEvent is emitted to AgentOptions.Observer as the loop progresses.
type RunEvent struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Iteration int             `json:"iteration"`
	State     State           `json:"state"`
	ToolName  string          `json:"tool_name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Text      string          `json:"text,omitempty"`
	ToolCalls int             `json:"tool_calls,omitempty"`
}
