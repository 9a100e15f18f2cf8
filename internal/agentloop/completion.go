package agentloop

import (
	"context"
	"fmt"
	"strings"
)

// CompletionAPI is the remote chat-completion service. One call is one
// blocking request/response exchange.
type CompletionAPI interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

type CompletionRequest struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Completion is the provider-neutral shape of one model response: tool calls,
// final text, or a truncated partial answer.
type Completion struct {
	ID         string
	Text       string
	ToolCalls  []ToolCall
	Truncated  bool
	StopReason string
}

func (c Completion) HasFinalText() bool {
	return strings.TrimSpace(c.Text) != ""
}

func summarizeCompletionRequest(req CompletionRequest) string {
	parts := []string{
		fmt.Sprintf("model=%q", strings.TrimSpace(req.Model)),
		fmt.Sprintf("max_tokens=%d", req.MaxTokens),
		fmt.Sprintf("tools=%d", len(req.Tools)),
		fmt.Sprintf("messages=%s", summarizeMessages(req.Messages)),
	}
	return strings.Join(parts, " ")
}

func summarizeMessages(messages []Message) string {
	if len(messages) == 0 {
		return "items=0"
	}
	out := make([]string, 0, len(messages))
	for _, msg := range messages {
		token := string(msg.Role)
		if token == "" {
			token = "<empty_role>"
		}
		if len(msg.ToolCalls) > 0 {
			token += fmt.Sprintf("(tool_calls=%d)", len(msg.ToolCalls))
		}
		if msg.ToolCallID != "" {
			token += fmt.Sprintf("(call_id=%s)", msg.ToolCallID)
		}
		token += fmt.Sprintf("(len=%d)", len(strings.TrimSpace(msg.Content)))
		out = append(out, token)
	}
	return fmt.Sprintf("items=%d[%s]", len(messages), strings.Join(out, ", "))
}

func summarizeToolCalls(calls []ToolCall) string {
	if len(calls) == 0 {
		return "<none>"
	}
	out := make([]string, 0, len(calls))
	for _, call := range calls {
		out = append(out, fmt.Sprintf(
			"%s(call_id=%s,args_len=%d)",
			strings.TrimSpace(call.Name),
			strings.TrimSpace(call.ID),
			len(strings.TrimSpace(string(call.Arguments))),
		))
	}
	return strings.Join(out, ", ")
}

func clipForLog(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "...(truncated)"
}
