package protocol

import "encoding/json"

const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"

	OpAgentRun   = "agent.run"
	OpAgentEvent = "agent.event"

	CodeBadRequest     = "bad_request"
	CodeIterationLimit = "iteration_limit"
	CodeRunFailed      = "run_failed"
)

type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
	Error   *ErrPayload     `json:"error,omitempty"`
}

type ErrPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunRequest is the payload of an agent.run request.
type RunRequest struct {
	Task          string `json:"task"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// RunResult is the payload of the agent.run response. It is also sent with
// an error so the client learns the run id and final state.
type RunResult struct {
	RunID      string `json:"run_id"`
	State      string `json:"state"`
	FinalText  string `json:"final_text,omitempty"`
	Iterations int    `json:"iterations"`
}

func MustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func NewResponse(id, op string, payload any) Message {
	return Message{ID: id, Type: TypeResponse, Op: op, Payload: MustRaw(payload)}
}

func NewErrorResponse(id, op, code, message string, payload any) Message {
	msg := NewResponse(id, op, payload)
	msg.Error = &ErrPayload{Code: code, Message: message}
	return msg
}
