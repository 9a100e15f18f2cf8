package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicModel = "claude-sonnet-4-20250514"

type AnthropicConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// AnthropicClient talks to the Messages API. Retries are disabled so that one
// Complete call is exactly one HTTP exchange.
type AnthropicClient struct {
	cfg    AnthropicConfig
	client anthropic.Client
}

func NewAnthropicClient(cfg AnthropicConfig, httpClient *http.Client) (*AnthropicClient, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key is required", ErrConfiguration)
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &AnthropicClient{cfg: cfg, client: anthropic.NewClient(opts...)}, nil
}

func (c *AnthropicClient) Model() string {
	return c.cfg.Model
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	params := c.toSDKRequest(req)
	emitCompletionRequestRaw(ctx, marshalJSONForDebug(params))
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(err, req)
	}
	emitCompletionResponseRaw(ctx, msg.RawJSON())
	return parseAnthropicMessage(msg)
}

func (c *AnthropicClient) toSDKRequest(req CompletionRequest) anthropic.MessageNewParams {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	return params
}

// toAnthropicMessages folds the history into alternating user/assistant
// turns. Tool results travel as tool_result blocks inside a user turn, so
// consecutive user-side messages are merged.
func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var (
		role   anthropic.MessageParamRole
		blocks []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == anthropic.MessageParamRoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}
	for _, msg := range messages {
		next := anthropic.MessageParamRoleUser
		if msg.Role == RoleAssistant {
			next = anthropic.MessageParamRoleAssistant
		}
		if next != role {
			flush()
			role = next
		}
		switch msg.Role {
		case RoleAssistant:
			if strings.TrimSpace(msg.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, normalizeArguments(call.Arguments), call.Name))
			}
		case RoleToolResult:
			blocks = append(blocks, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		default:
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
	}
	flush()
	return out
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		props := map[string]any{}
		for name, prop := range spec.Parameters.Properties {
			props[name] = prop
		}
		schema := anthropic.ToolInputSchemaParam{Properties: props}
		if len(spec.Parameters.Required) > 0 {
			schema.Required = append([]string(nil), spec.Parameters.Required...)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		out = append(out, tool)
	}
	return out
}

func parseAnthropicMessage(msg *anthropic.Message) (*Completion, error) {
	if msg == nil {
		return nil, errors.New("anthropic api returned empty message")
	}
	out := &Completion{
		ID:         strings.TrimSpace(msg.ID),
		StopReason: string(msg.StopReason),
		Truncated:  msg.StopReason == anthropic.StopReasonMaxTokens,
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			if strings.TrimSpace(variant.Text) == "" {
				continue
			}
			if out.Text == "" {
				out.Text = variant.Text
			} else {
				out.Text += "\n" + variant.Text
			}
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        strings.TrimSpace(variant.ID),
				Name:      strings.TrimSpace(variant.Name),
				Arguments: normalizeArguments(variant.Input),
			})
		}
	}
	return out, nil
}

func wrapAnthropicError(err error, req CompletionRequest) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		body := strings.TrimSpace(apiErr.RawJSON())
		if body == "" {
			body = strings.TrimSpace(err.Error())
		}
		return fmt.Errorf(
			"anthropic api status %d request=%s response=%s: %w",
			apiErr.StatusCode,
			summarizeCompletionRequest(req),
			clipForLog(body, 2000),
			err,
		)
	}
	return fmt.Errorf("anthropic request failed request=%s: %w", summarizeCompletionRequest(req), err)
}

func normalizeArguments(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}

func marshalJSONForDebug(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("{\"marshal_error\":%q}", err.Error())
	}
	return string(raw)
}
