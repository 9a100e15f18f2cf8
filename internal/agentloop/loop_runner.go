package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	DefaultMaxIterations = 10
	DefaultMaxTokens     = 1024

	truncatedContinuePrompt = "Your response was cut off. Please continue."
)

type AgentOptions struct {
	MaxIterations int
	Model         string
	System        string
	MaxTokens     int
	Logger        *slog.Logger
	// Observer receives every RunEvent synchronously on the run goroutine.
	Observer func(RunEvent)
	// TraceRaw forwards raw provider payloads to the Observer.
	TraceRaw bool
}

// Agent drives the think, act, observe cycle. One Agent processes one run at
// a time; concurrent calls to Run are serialized.
type Agent struct {
	client  CompletionAPI
	tools   *ToolRegistry
	options AgentOptions

	runMu sync.Mutex

	mu         sync.RWMutex
	history    []Message
	state      State
	iterations int
}

func NewAgent(client CompletionAPI, tools *ToolRegistry, options AgentOptions) *Agent {
	if options.MaxIterations <= 0 {
		options.MaxIterations = DefaultMaxIterations
	}
	if options.MaxTokens <= 0 {
		options.MaxTokens = DefaultMaxTokens
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Agent{client: client, tools: tools, options: options, state: StateIdle}
}

// Run starts a fresh conversation with task as the first user message and
// returns the model's final answer. When the iteration cap is hit the error
// is an *IterationLimitError and History still holds the partial exchange.
func (a *Agent) Run(ctx context.Context, task string) (string, error) {
	return a.run(ctx, task, false)
}

// Continue appends text to the existing conversation instead of resetting it.
func (a *Agent) Continue(ctx context.Context, text string) (string, error) {
	return a.run(ctx, text, true)
}

func (a *Agent) History() []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneMessages(a.history)
}

func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Iterations is the number of completion requests issued by the last run.
func (a *Agent) Iterations() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.iterations
}

func (a *Agent) run(ctx context.Context, text string, keepHistory bool) (string, error) {
	if a == nil || a.client == nil {
		return "", fmt.Errorf("%w: agent completion client is required", ErrConfiguration)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("task text is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.mu.Lock()
	if !keepHistory {
		a.history = nil
	}
	a.history = append(a.history, Message{Role: RoleUser, Content: text})
	a.iterations = 0
	a.state = StateAwaitingModel
	a.mu.Unlock()

	scope, _ := RunScopeFromContext(ctx)
	logger := a.options.Logger.With("run_id", scope.RunID)
	logger.Info("agent run started", "task_len", len(text), "continue", keepHistory, "max_iterations", a.options.MaxIterations)

	for i := 0; i < a.options.MaxIterations; i++ {
		iteration := i + 1
		if err := ctx.Err(); err != nil {
			return "", a.fail(scope, logger, iteration-1, fmt.Errorf("agent run canceled: %w", err))
		}
		a.mu.Lock()
		a.iterations = iteration
		a.mu.Unlock()
		a.emit(scope, RunEvent{Type: EventIterationStart, Iteration: iteration, State: StateAwaitingModel})

		req := CompletionRequest{
			Model:     a.options.Model,
			System:    a.options.System,
			Messages:  a.History(),
			Tools:     a.resolveToolSpecs(ctx),
			MaxTokens: a.options.MaxTokens,
		}
		res, err := a.client.Complete(a.debugContext(ctx, scope, iteration), req)
		if err != nil {
			return "", a.fail(scope, logger, iteration, fmt.Errorf(
				"%w: completion request failed iteration=%d %s: %w",
				ErrRemoteService, iteration, summarizeCompletionRequest(req), err,
			))
		}
		if res == nil {
			return "", a.fail(scope, logger, iteration, fmt.Errorf(
				"%w: completion service returned no response iteration=%d", ErrProtocol, iteration,
			))
		}
		logger.Info("agent iteration",
			"iteration", iteration,
			"response_id", res.ID,
			"stop_reason", res.StopReason,
			"tool_calls", summarizeToolCalls(res.ToolCalls),
			"final_text_len", len(strings.TrimSpace(res.Text)),
		)
		a.emit(scope, RunEvent{
			Type:      EventCompletion,
			Iteration: iteration,
			State:     StateAwaitingModel,
			Text:      res.Text,
			ToolCalls: len(res.ToolCalls),
		})

		switch {
		case len(res.ToolCalls) > 0:
			for _, call := range res.ToolCalls {
				if strings.TrimSpace(call.ID) == "" {
					return "", a.fail(scope, logger, iteration, fmt.Errorf(
						"%w: tool call missing id iteration=%d tool=%s", ErrProtocol, iteration, strings.TrimSpace(call.Name),
					))
				}
			}
			a.appendMessage(Message{Role: RoleAssistant, Content: res.Text, ToolCalls: res.ToolCalls}, StateDispatching)
			for _, call := range res.ToolCalls {
				result := a.dispatch(ctx, scope, logger, iteration, call)
				msg := Message{
					Role:       RoleToolResult,
					Content:    result.Output,
					ToolCallID: result.CallID,
					ToolName:   result.Name,
				}
				if !result.Success() {
					msg.Content = observationForError(result.Err)
					msg.IsError = true
				}
				a.appendMessage(msg, StateDispatching)
			}
			a.setState(StateAwaitingModel)
		case res.Truncated:
			if res.HasFinalText() {
				a.appendMessage(Message{Role: RoleAssistant, Content: res.Text}, StateAwaitingModel)
			}
			a.appendMessage(Message{Role: RoleUser, Content: truncatedContinuePrompt}, StateAwaitingModel)
			logger.Warn("agent response truncated, asking to continue", "iteration", iteration)
		case res.HasFinalText():
			a.appendMessage(Message{Role: RoleAssistant, Content: res.Text}, StateDone)
			logger.Info("agent run done", "iterations", iteration)
			a.emit(scope, RunEvent{Type: EventDone, Iteration: iteration, State: StateDone, Text: res.Text})
			return res.Text, nil
		default:
			return "", a.fail(scope, logger, iteration, fmt.Errorf(
				"%w: response has neither final text nor tool calls iteration=%d response_id=%q stop_reason=%q",
				ErrProtocol, iteration, res.ID, res.StopReason,
			))
		}
	}

	a.setState(StateAborted)
	limitErr := &IterationLimitError{Iterations: a.options.MaxIterations}
	logger.Warn("agent run aborted", "iterations", a.options.MaxIterations)
	a.emit(scope, RunEvent{Type: EventAborted, Iteration: a.options.MaxIterations, State: StateAborted, Error: limitErr.Error()})
	return "", limitErr
}

func (a *Agent) dispatch(ctx context.Context, scope RunScope, logger *slog.Logger, iteration int, call ToolCall) ToolResult {
	name := strings.TrimSpace(call.Name)
	callID := strings.TrimSpace(call.ID)
	result := ToolResult{CallID: callID, Name: name}
	startEvent := RunEvent{Type: EventToolStart, Iteration: iteration, State: StateDispatching, ToolName: name, CallID: callID}
	if json.Valid(call.Arguments) {
		startEvent.Input = call.Arguments
	}
	a.emit(scope, startEvent)

	switch {
	case a.tools == nil:
		result.Err = NewToolError(ErrUnknownTool, name, "tool registry unavailable", "")
	case !a.toolAllowed(ctx, name):
		result.Err = NewToolError(ErrUnknownTool, name,
			fmt.Sprintf("tool %q is not enabled for this run", name),
			"call one of the tools listed in the request")
	default:
		result.Output, result.Err = a.tools.InvokeRaw(ctx, name, call.Arguments)
	}

	if result.Err != nil {
		logger.Warn("agent tool failed", "iteration", iteration, "tool", name, "call_id", callID, "err", result.Err)
		a.emit(scope, RunEvent{
			Type:      EventToolError,
			Iteration: iteration,
			State:     StateDispatching,
			ToolName:  name,
			CallID:    callID,
			Error:     result.Err.Error(),
		})
		return result
	}
	logger.Debug("agent tool output", "iteration", iteration, "tool", name, "call_id", callID, "output", clipForLog(result.Output, 800))
	a.emit(scope, RunEvent{
		Type:      EventToolOutput,
		Iteration: iteration,
		State:     StateDispatching,
		ToolName:  name,
		CallID:    callID,
		Output:    result.Output,
	})
	return result
}

func (a *Agent) fail(scope RunScope, logger *slog.Logger, iteration int, err error) error {
	a.setState(StateFailed)
	logger.Error("agent run failed", "iteration", iteration, "err", err)
	a.emit(scope, RunEvent{Type: EventFailed, Iteration: iteration, State: StateFailed, Error: err.Error()})
	return err
}

func (a *Agent) appendMessage(msg Message, state State) {
	a.mu.Lock()
	a.history = append(a.history, msg)
	a.state = state
	a.mu.Unlock()
}

func (a *Agent) setState(state State) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

func (a *Agent) emit(scope RunScope, event RunEvent) {
	if a.options.Observer == nil {
		return
	}
	event.RunID = scope.RunID
	a.options.Observer(event)
}

func (a *Agent) debugContext(ctx context.Context, scope RunScope, iteration int) context.Context {
	if !a.options.TraceRaw || a.options.Observer == nil {
		return ctx
	}
	return WithCompletionDebugHooks(ctx, CompletionDebugHooks{
		OnRequestRaw: func(raw string) {
			a.emit(scope, RunEvent{Type: EventRawRequest, Iteration: iteration, State: StateAwaitingModel, Text: raw})
		},
		OnResponseRaw: func(raw string) {
			a.emit(scope, RunEvent{Type: EventRawResponse, Iteration: iteration, State: StateAwaitingModel, Text: raw})
		},
	})
}

func (a *Agent) resolveToolSpecs(ctx context.Context) []ToolSpec {
	if a.tools == nil {
		return nil
	}
	allowed, configured := AllowedToolNamesFromContext(ctx)
	if !configured {
		return a.tools.Describe()
	}
	return a.tools.DescribeNames(allowed)
}

func (a *Agent) toolAllowed(ctx context.Context, name string) bool {
	allowed, configured := allowedToolNameSetFromContext(ctx)
	if !configured {
		return true
	}
	_, ok := allowed[name]
	return ok
}
