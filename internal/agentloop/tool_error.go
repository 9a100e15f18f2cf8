package agentloop

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrRemoteService    = errors.New("remote service error")
	ErrProtocol         = errors.New("protocol error")
	ErrIterationLimit   = errors.New("iteration limit reached")
	ErrDuplicateTool    = errors.New("duplicate tool name")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrToolExecution    = errors.New("tool execution failed")
)

// ToolError is a failure scoped to one tool invocation. The loop folds it
// back into the conversation instead of failing the run.
type ToolError struct {
	Kind    error  `json:"-"`
	Tool    string `json:"-"`
	Message string `json:"error"`
	Suggest string `json:"suggest"`
	Cause   error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil || e.Message == "" {
		return "UNKNOWN_ERROR"
	}
	return e.Message
}

func (e *ToolError) Is(target error) bool {
	return e != nil && e.Kind != nil && target == e.Kind
}

func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewToolError(kind error, tool, message, suggest string) *ToolError {
	if suggest == "" {
		suggest = "NO_SUGGESTION"
	}
	return &ToolError{Kind: kind, Tool: tool, Message: message, Suggest: suggest}
}

func unknownToolError(name string) *ToolError {
	return NewToolError(ErrUnknownTool, name,
		fmt.Sprintf("tool %q not found", name),
		"call one of the tools listed in the request")
}

func invalidArgumentsError(name string, cause error) *ToolError {
	te := NewToolError(ErrInvalidArguments, name,
		fmt.Sprintf("invalid arguments for tool %q: %v", name, cause),
		"check the tool parameter schema and retry with the required arguments")
	te.Cause = cause
	return te
}

func toolExecutionError(name string, cause error) *ToolError {
	te := NewToolError(ErrToolExecution, name,
		fmt.Sprintf("error executing tool %q: %v", name, cause),
		"")
	te.Cause = cause
	return te
}

// observationForError renders err as the payload of a tool_result message.
func observationForError(err error) string {
	var te *ToolError
	if !errors.As(err, &te) {
		te = NewToolError(ErrToolExecution, "", err.Error(), "")
	}
	return mustMarshalToolError(te)
}

func mustMarshalToolError(err *ToolError) string {
	if err == nil {
		err = NewToolError(nil, "", "UNKNOWN_ERROR", "NO_SUGGESTION")
	}
	raw, _ := json.Marshal(err)
	return string(raw)
}

type IterationLimitError struct {
	Iterations int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("agent loop exceeded max iterations: %d", e.Iterations)
}

func (e *IterationLimitError) Is(target error) bool {
	return target == ErrIterationLimit
}
