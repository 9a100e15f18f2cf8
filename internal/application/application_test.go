package application

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"gitagent/cli/internal/agentloop"
	"gitagent/cli/internal/config"
	"gitagent/cli/internal/global"
)

type stubCompletion struct {
	mu        sync.Mutex
	responses []*agentloop.Completion
	requests  []agentloop.CompletionRequest
	scopes    []agentloop.RunScope
}

func (s *stubCompletion) Complete(ctx context.Context, req agentloop.CompletionRequest) (*agentloop.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	scope, _ := agentloop.RunScopeFromContext(ctx)
	s.scopes = append(s.scopes, scope)
	if len(s.responses) == 0 {
		return &agentloop.Completion{ToolCalls: []agentloop.ToolCall{{ID: "loop", Name: "calculator", Arguments: json.RawMessage(`{"operation":"add","a":1,"b":1}`)}}}, nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Provider:      config.ProviderAnthropic,
		Model:         "test-model",
		MaxIterations: 10,
		MaxTokens:     1024,
		DBPath:        filepath.Join(t.TempDir(), "gitagent.db"),
	}
}

func startTestApp(t *testing.T, cfg config.Config, client agentloop.CompletionAPI) *Application {
	t.Helper()
	app, err := StartApplication(context.Background(), StartOptions{
		Config:  cfg,
		WorkDir: t.TempDir(),
		Hooks:   Hooks{Completion: client, SkipMCP: true},
	})
	if err != nil {
		t.Fatalf("start application failed: %v", err)
	}
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func TestStartApplication_RequiresValidConfigWithoutHook(t *testing.T) {
	_, err := StartApplication(context.Background(), StartOptions{Config: testConfig(t)})
	if !errors.Is(err, agentloop.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing api key, got %v", err)
	}
}

func TestExecute_RecordsSuccessfulRun(t *testing.T) {
	client := &stubCompletion{responses: []*agentloop.Completion{
		{ToolCalls: []agentloop.ToolCall{{ID: "c1", Name: "calculator", Arguments: json.RawMessage(`{"operation":"multiply","a":25,"b":47}`)}}},
		{Text: "1175"},
	}}
	app := startTestApp(t, testConfig(t), client)

	var events []agentloop.RunEvent
	res, err := app.Execute(context.Background(), ExecuteRequest{
		Task:     "What is 25 * 47?",
		Observer: func(ev agentloop.RunEvent) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.FinalText != "1175" || res.State != agentloop.StateDone || res.Iterations != 2 {
		t.Fatalf("unexpected result: %#v", res)
	}
	if len(events) == 0 || events[0].RunID != res.RunID {
		t.Fatalf("expected events tagged with run id %s, got %#v", res.RunID, events)
	}
	if client.requests[0].Model != "test-model" {
		t.Fatalf("expected configured model, got %q", client.requests[0].Model)
	}

	run, err := app.Transcripts().Get(res.RunID)
	if err != nil {
		t.Fatalf("get transcript failed: %v", err)
	}
	if run.State != "done" || run.Source != "cli" || len(run.Messages) != 4 {
		t.Fatalf("unexpected transcript: %#v", run)
	}
	if run.Messages[2].Content != "1175" {
		t.Fatalf("expected tool observation recorded, got %#v", run.Messages[2])
	}
}

func TestExecute_RecordsAbortedRun(t *testing.T) {
	app := startTestApp(t, testConfig(t), &stubCompletion{})
	res, err := app.Execute(context.Background(), ExecuteRequest{Task: "spin", Source: "ws", MaxIterations: 2})
	if !errors.Is(err, agentloop.ErrIterationLimit) {
		t.Fatalf("expected iteration limit, got %v", err)
	}
	if res.State != agentloop.StateAborted || res.Iterations != 2 {
		t.Fatalf("unexpected result: %#v", res)
	}
	run, err := app.Transcripts().Get(res.RunID)
	if err != nil {
		t.Fatalf("get transcript failed: %v", err)
	}
	if run.State != "aborted" || run.Source != "ws" || run.Error == "" {
		t.Fatalf("unexpected transcript: %#v", run)
	}
}

func TestExecute_EnabledToolsLimitOfferedTools(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnabledTools = []string{"read_file", "calculator"}
	client := &stubCompletion{responses: []*agentloop.Completion{{Text: "ok"}}}
	app := startTestApp(t, cfg, client)

	if _, err := app.Execute(context.Background(), ExecuteRequest{Task: "hi"}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	tools := client.requests[0].Tools
	if len(tools) != 2 || tools[0].Name != "calculator" || tools[1].Name != "read_file" {
		t.Fatalf("unexpected offered tools: %#v", tools)
	}
	if app.Registry().Len() != 9 {
		t.Fatalf("expected every built-in registered, got %d", app.Registry().Len())
	}
}

func TestExecute_RejectsEmptyTask(t *testing.T) {
	app := startTestApp(t, testConfig(t), &stubCompletion{})
	if _, err := app.Execute(context.Background(), ExecuteRequest{Task: " "}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewCompletionClient(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnthropicAPIKey = "k"
	client, err := NewCompletionClient(cfg, nil)
	if err != nil {
		t.Fatalf("anthropic client failed: %v", err)
	}
	if _, ok := client.(*agentloop.AnthropicClient); !ok {
		t.Fatalf("expected anthropic client, got %T", client)
	}
	cfg.Provider = config.ProviderOpenAI
	cfg.OpenAIAPIKey = "k"
	client, err = NewCompletionClient(cfg, nil)
	if err != nil {
		t.Fatalf("openai client failed: %v", err)
	}
	if _, ok := client.(*agentloop.ResponsesClient); !ok {
		t.Fatalf("expected responses client, got %T", client)
	}
	cfg.Provider = "other"
	if _, err := NewCompletionClient(cfg, nil); !errors.Is(err, agentloop.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStartApplication_InspectNeedsNoCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.MCPServers = []global.MCPServer{{Name: "never", Command: "/nonexistent/mcp-server"}}
	app, err := StartApplication(context.Background(), StartOptions{Config: cfg, WorkDir: t.TempDir(), Inspect: true})
	if err != nil {
		t.Fatalf("inspect start failed: %v", err)
	}
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	if app.Registry().Len() != 9 {
		t.Fatalf("expected built-ins only, got %d", app.Registry().Len())
	}
	if _, err := app.Transcripts().List(5); err != nil {
		t.Fatalf("list transcripts failed: %v", err)
	}
	if _, err := app.Execute(context.Background(), ExecuteRequest{Task: "hi"}); !errors.Is(err, agentloop.ErrConfiguration) {
		t.Fatalf("expected configuration error from inspect app, got %v", err)
	}
}

func TestExecute_RunsWhenTranscriptStartFails(t *testing.T) {
	client := &stubCompletion{responses: []*agentloop.Completion{{Text: "hello back"}}}
	app := startTestApp(t, testConfig(t), client)
	if err := app.gdb.Exec("DROP TABLE runs").Error; err != nil {
		t.Fatalf("drop table failed: %v", err)
	}

	res, err := app.Execute(context.Background(), ExecuteRequest{Task: "hello"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected one completion request, got %d", len(client.requests))
	}
	if res.FinalText != "hello back" || res.State != agentloop.StateDone || res.RunID == "" {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestExecute_PassesResponsesStoreFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAIStore = true
	client := &stubCompletion{responses: []*agentloop.Completion{{Text: "ok"}}}
	app := startTestApp(t, cfg, client)

	res, err := app.Execute(context.Background(), ExecuteRequest{Task: "hi", Source: "ws"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	scope := client.scopes[0]
	if !scope.ResponsesStore || scope.RunID != res.RunID || scope.Source != "ws" {
		t.Fatalf("unexpected run scope: %#v", scope)
	}
}
