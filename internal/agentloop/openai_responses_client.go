package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
)

type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// ResponsesClient talks to the OpenAI Responses API in full-context mode: the
// whole history is replayed on every request instead of relying on
// previous_response_id, which proxies with store=false do not honour.
type ResponsesClient struct {
	cfg     OpenAIConfig
	service responses.ResponseService
}

func NewResponsesClient(cfg OpenAIConfig, httpClient *http.Client) (*ResponsesClient, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key is required", ErrConfiguration)
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai model is required", ErrConfiguration)
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
	return &ResponsesClient{
		cfg:     cfg,
		service: responses.NewResponseService(opts...),
	}, nil
}

func (c *ResponsesClient) Model() string {
	return c.cfg.Model
}

func (c *ResponsesClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	params, err := c.toSDKRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	emitCompletionRequestRaw(ctx, marshalJSONForDebug(params))
	var rawResp *http.Response
	var rawBody []byte
	_, err = c.service.New(
		ctx,
		params,
		option.WithResponseInto(&rawResp),
		option.WithResponseBodyInto(&rawBody),
	)
	if err != nil {
		return nil, wrapResponsesError(err, req, rawResp)
	}
	if len(rawBody) == 0 {
		return nil, fmt.Errorf("responses api returned empty response request=%s", summarizeCompletionRequest(req))
	}
	emitCompletionResponseRaw(ctx, string(rawBody))
	return parseResponseResult(rawBody)
}

func (c *ResponsesClient) toSDKRequest(ctx context.Context, req CompletionRequest) (responses.ResponseNewParams, error) {
	var out responses.ResponseNewParams
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.Model
	}
	out.Model = model
	scope, _ := RunScopeFromContext(ctx)
	out.Store = param.NewOpt(scope.ResponsesStore)
	if system := strings.TrimSpace(req.System); system != "" {
		out.Instructions = param.NewOpt(system)
	}
	if req.MaxTokens > 0 {
		out.MaxOutputTokens = param.NewOpt(int64(req.MaxTokens))
	}
	items := make(responses.ResponseInputParam, 0, len(req.Messages))
	for i, rawItem := range toResponsesInputItems(req.Messages) {
		item, err := toSDKInputItem(rawItem)
		if err != nil {
			return responses.ResponseNewParams{}, fmt.Errorf("invalid response input item[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	out.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: items}
	if len(req.Tools) > 0 {
		tools, err := toSDKTools(req.Tools)
		if err != nil {
			return responses.ResponseNewParams{}, err
		}
		out.Tools = tools
	}
	return out, nil
}

func toResponsesInputItems(messages []Message) []map[string]any {
	items := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			if strings.TrimSpace(msg.Content) != "" {
				items = append(items, map[string]any{
					"type":    "message",
					"role":    "assistant",
					"content": msg.Content,
				})
			}
			for _, call := range msg.ToolCalls {
				items = append(items, map[string]any{
					"type":      "function_call",
					"call_id":   strings.TrimSpace(call.ID),
					"name":      strings.TrimSpace(call.Name),
					"arguments": string(normalizeArguments(call.Arguments)),
				})
			}
		case RoleToolResult:
			items = append(items, map[string]any{
				"type":    "function_call_output",
				"call_id": strings.TrimSpace(msg.ToolCallID),
				"output":  msg.Content,
			})
		default:
			items = append(items, map[string]any{
				"type": "message",
				"role": "user",
				"content": []map[string]any{
					{"type": "input_text", "text": msg.Content},
				},
			})
		}
	}
	return items
}

func toSDKInputItem(rawItem any) (responses.ResponseInputItemUnionParam, error) {
	raw, err := json.Marshal(rawItem)
	if err != nil {
		return responses.ResponseInputItemUnionParam{}, fmt.Errorf("marshal response input item failed: %w", err)
	}
	var out responses.ResponseInputItemUnionParam
	if err := json.Unmarshal(raw, &out); err != nil {
		return responses.ResponseInputItemUnionParam{}, fmt.Errorf("decode response input item failed: %w", err)
	}
	return out, nil
}

func toSDKTools(specs []ToolSpec) ([]responses.ToolUnionParam, error) {
	out := make([]responses.ToolUnionParam, 0, len(specs))
	for i, spec := range specs {
		raw, err := json.Marshal(map[string]any{
			"type":        "function",
			"name":        spec.Name,
			"description": spec.Description,
			"parameters":  spec.Parameters.JSONSchema(),
			"strict":      false,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal response tool[%d] failed: %w", i, err)
		}
		var tool responses.ToolUnionParam
		if err := json.Unmarshal(raw, &tool); err != nil {
			return nil, fmt.Errorf("decode response tool[%d] failed: %w", i, err)
		}
		out = append(out, tool)
	}
	return out, nil
}

type responseContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseItem struct {
	Type      string                `json:"type"`
	ID        string                `json:"id"`
	CallID    string                `json:"call_id"`
	Name      string                `json:"name"`
	Arguments string                `json:"arguments"`
	Content   []responseContentPart `json:"content"`
}

type responsePayload struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Output []responseItem `json:"output"`
}

func parseResponseResult(raw []byte) (*Completion, error) {
	var decoded responsePayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	out := &Completion{ID: strings.TrimSpace(decoded.ID), StopReason: strings.TrimSpace(decoded.Status)}
	if decoded.Status == "incomplete" {
		out.Truncated = true
		if decoded.IncompleteDetails != nil && decoded.IncompleteDetails.Reason != "" {
			out.StopReason = decoded.IncompleteDetails.Reason
		}
	}
	for _, item := range decoded.Output {
		if call, ok := toToolCall(item); ok {
			out.ToolCalls = append(out.ToolCalls, call)
			continue
		}
		appendMessageText(out, item.Content)
	}
	return out, nil
}

func toToolCall(item responseItem) (ToolCall, bool) {
	if strings.TrimSpace(item.Type) != "function_call" {
		return ToolCall{}, false
	}
	id := strings.TrimSpace(item.CallID)
	if id == "" {
		id = strings.TrimSpace(item.ID)
	}
	return ToolCall{
		ID:        id,
		Name:      strings.TrimSpace(item.Name),
		Arguments: json.RawMessage(item.Arguments),
	}, true
}

func appendMessageText(out *Completion, parts []responseContentPart) {
	for _, content := range parts {
		if strings.TrimSpace(content.Type) != "output_text" || strings.TrimSpace(content.Text) == "" {
			continue
		}
		if out.Text == "" {
			out.Text = content.Text
		} else {
			out.Text += "\n" + content.Text
		}
	}
}

func wrapResponsesError(err error, req CompletionRequest, rawResp *http.Response) error {
	var apiErr *responses.Error
	if errors.As(err, &apiErr) {
		resp := rawResp
		if resp == nil {
			resp = apiErr.Response
		}
		body := strings.TrimSpace(apiErr.RawJSON())
		if body == "" {
			body = strings.TrimSpace(err.Error())
		}
		return fmt.Errorf(
			"responses api status %d request_id=%q request=%s response=%s: %w",
			apiErr.StatusCode,
			responseRequestID(resp),
			summarizeCompletionRequest(req),
			clipForLog(body, 2000),
			err,
		)
	}
	return fmt.Errorf("responses request failed request=%s: %w", summarizeCompletionRequest(req), err)
}

func responseRequestID(resp *http.Response) string {
	if resp == nil || resp.Header == nil {
		return ""
	}
	for _, key := range []string{"x-request-id", "request-id", "openai-request-id", "x-openai-request-id"} {
		value := strings.TrimSpace(resp.Header.Get(key))
		if value != "" {
			return value
		}
	}
	return ""
}
