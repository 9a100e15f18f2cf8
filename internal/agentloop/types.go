package agentloop

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
)

type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindNull    Kind = "null"
)

type Property struct {
	Type        Kind     `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema describes the named parameters a tool accepts. It is rendered as a
// JSON schema object for the completion service.
type Schema struct {
	Properties map[string]Property
	Required   []string
}

func (s Schema) JSONSchema() map[string]any {
	props := map[string]any{}
	for name, prop := range s.Properties {
		props[name] = prop
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = slices.Clone(s.Required)
	}
	return out
}

func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.JSONSchema())
}

type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  Schema `json:"parameters"`
}

type Handler interface {
	Invoke(ctx context.Context, args Arguments) (string, error)
}

type HandlerFunc func(ctx context.Context, args Arguments) (string, error)

func (f HandlerFunc) Invoke(ctx context.Context, args Arguments) (string, error) {
	return f(ctx, args)
}

type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Handler     Handler
}

func (t Tool) Spec() ToolSpec {
	return ToolSpec{
		Name:        strings.TrimSpace(t.Name),
		Description: t.Description,
		Parameters:  t.Schema,
	}
}

type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry of the ordered conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

type ToolResult struct {
	CallID string
	Name   string
	Output string
	Err    error
}

func (r ToolResult) Success() bool {
	return r.Err == nil
}

func cloneMessages(in []Message) []Message {
	out := make([]Message, 0, len(in))
	for _, msg := range in {
		msg.ToolCalls = slices.Clone(msg.ToolCalls)
		out = append(out, msg)
	}
	return out
}
