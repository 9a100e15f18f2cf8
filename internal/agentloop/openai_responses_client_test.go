package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func anyToString(v any) string {
	s, _ := v.(string)
	return s
}

func TestNewResponsesClient_RequiresKeyAndModel(t *testing.T) {
	if _, err := NewResponsesClient(OpenAIConfig{Model: "gpt-5-mini"}, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for missing key, got %v", err)
	}
	if _, err := NewResponsesClient(OpenAIConfig{APIKey: "k"}, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for missing model, got %v", err)
	}
}

func TestResponsesClient_ToolRoundtripFullContext(t *testing.T) {
	callCount := 0
	requestBodies := make([]map[string]any, 0, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("expected /responses path, got %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request body failed: %v", err)
		}
		requestBodies = append(requestBodies, req)
		callCount++
		w.Header().Set("Content-Type", "application/json")
		if callCount == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "resp_1",
				"status": "completed",
				"output": []map[string]any{
					{
						"type":      "function_call",
						"id":        "fc_1",
						"call_id":   "call_1",
						"name":      "calculator",
						"arguments": `{"a":25,"b":47}`,
					},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "resp_2",
			"status": "completed",
			"output": []map[string]any{
				{
					"type": "message",
					"content": []map[string]any{
						{"type": "output_text", "text": "1175"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewResponsesClient(OpenAIConfig{
		BaseURL: srv.URL,
		Model:   "gpt-5-mini",
		APIKey:  "test-key",
	}, srv.Client())
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	agent := NewAgent(client, newCalculatorRegistry(t, nil), AgentOptions{MaxIterations: 4})

	out, err := agent.Run(context.Background(), "What is 25 * 47?")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(out) != "1175" {
		t.Fatalf("unexpected final output: %q", out)
	}
	if callCount != 2 {
		t.Fatalf("expected 2 responses calls, got %d", callCount)
	}

	firstTools, ok := requestBodies[0]["tools"].([]any)
	if !ok || len(firstTools) != 1 {
		t.Fatalf("expected first request carries tools, got %#v", requestBodies[0]["tools"])
	}
	secondInput, ok := requestBodies[1]["input"].([]any)
	if !ok || len(secondInput) != 3 {
		t.Fatalf("expected second request input has full context items, got %#v", requestBodies[1]["input"])
	}
	callItem, _ := secondInput[1].(map[string]any)
	if anyToString(callItem["type"]) != "function_call" || anyToString(callItem["call_id"]) != "call_1" {
		t.Fatalf("unexpected function_call item: %#v", callItem)
	}
	lastItem, _ := secondInput[2].(map[string]any)
	if got := anyToString(lastItem["type"]); got != "function_call_output" {
		t.Fatalf("expected last item type=function_call_output, got %q", got)
	}
	if got := anyToString(lastItem["output"]); got != "1175" {
		t.Fatalf("expected output=1175, got %q", got)
	}
	if got := anyToString(requestBodies[1]["previous_response_id"]); got != "" {
		t.Fatalf("expected no previous_response_id in full-context mode, got %q", got)
	}
}

func TestParseResponseResult_Incomplete(t *testing.T) {
	res, err := parseResponseResult([]byte(`{
		"id":"resp_1","status":"incomplete",
		"incomplete_details":{"reason":"max_output_tokens"},
		"output":[{"type":"message","content":[{"type":"output_text","text":"partial"}]}]}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !res.Truncated || res.StopReason != "max_output_tokens" || res.Text != "partial" {
		t.Fatalf("unexpected completion: %#v", res)
	}
}

func TestParseResponseResult_FallsBackToItemID(t *testing.T) {
	res, err := parseResponseResult([]byte(`{"id":"r","output":[{"type":"function_call","id":"fc_9","name":"read_file","arguments":"{}"}]}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].ID != "fc_9" {
		t.Fatalf("unexpected tool calls: %#v", res.ToolCalls)
	}
}

func TestResponsesClient_StoreFollowsRunScope(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"r","status":"completed","output":[]}`))
	}))
	defer srv.Close()

	client, err := NewResponsesClient(OpenAIConfig{BaseURL: srv.URL, Model: "m", APIKey: "k"}, srv.Client())
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	ctx := WithRunScope(context.Background(), RunScope{ResponsesStore: true})
	if _, err := client.Complete(ctx, CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if body["store"] != true {
		t.Fatalf("expected store=true, got %#v", body["store"])
	}
}
