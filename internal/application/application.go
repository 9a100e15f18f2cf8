package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gitagent/cli/internal/agentloop"
	"gitagent/cli/internal/builtintools"
	"gitagent/cli/internal/config"
	"gitagent/cli/internal/db"
	"gitagent/cli/internal/logging"
	"gitagent/cli/internal/mcptools"
	"gitagent/cli/internal/transcript"
)

// Application owns the long-lived pieces shared by every run: the tool
// registry, the completion client and the transcript store. Each Execute
// builds a fresh Agent on top of them.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	client      agentloop.CompletionAPI
	registry    *agentloop.ToolRegistry
	gdb         *gorm.DB
	transcripts *transcript.Store
	mcpServers  []*mcptools.Server
}

type ExecuteRequest struct {
	Task          string
	Source        string
	MaxIterations int
	Observer      func(agentloop.RunEvent)
}

type Result struct {
	RunID      string
	State      agentloop.State
	FinalText  string
	Iterations int
}

func StartApplication(ctx context.Context, opts StartOptions) (*Application, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	app := &Application{cfg: cfg, logger: logger, registry: agentloop.NewToolRegistry()}

	app.client = opts.Hooks.Completion
	if app.client == nil && !opts.Inspect {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		client, err := NewCompletionClient(cfg, opts.Hooks.HTTPClient)
		if err != nil {
			return nil, err
		}
		app.client = client
	}

	if err := builtintools.RegisterAll(app.registry, builtintools.Options{
		WorkDir: opts.WorkDir,
		Runner:  opts.Hooks.Runner,
	}); err != nil {
		return nil, fmt.Errorf("register built-in tools: %w", err)
	}

	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", cfg.DBPath, err)
	}
	app.gdb = gdb
	if app.transcripts, err = transcript.NewStore(gdb); err != nil {
		_ = db.Close(gdb)
		return nil, err
	}

	if !opts.Hooks.SkipMCP && !opts.Inspect {
		for _, srv := range cfg.MCPServers {
			attached, err := mcptools.Attach(ctx, app.registry, mcptools.ServerConfig{
				Name:    srv.Name,
				Command: srv.Command,
				Args:    srv.Args,
				Env:     srv.Env,
			}, logger)
			if err != nil {
				_ = app.Shutdown(context.Background())
				return nil, err
			}
			app.mcpServers = append(app.mcpServers, attached)
		}
	}
	logger.Debug("application started", "inspect", opts.Inspect, "provider", cfg.Provider, "model", cfg.Model, "tools", app.registry.Len(), "db", cfg.DBPath)
	return app, nil
}

func (a *Application) Registry() *agentloop.ToolRegistry { return a.registry }

func (a *Application) Transcripts() *transcript.Store { return a.transcripts }

func (a *Application) Config() config.Config { return a.cfg }

// Execute runs one task to completion and records it. The returned error is
// the run error; the Result is filled even when a run fails.
func (a *Application) Execute(ctx context.Context, req ExecuteRequest) (Result, error) {
	task := strings.TrimSpace(req.Task)
	if task == "" {
		return Result{}, errors.New("task is required")
	}
	if a.client == nil {
		return Result{}, fmt.Errorf("%w: no completion client, application started for inspection", agentloop.ErrConfiguration)
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "cli"
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = a.cfg.MaxIterations
	}

	runID, err := a.transcripts.Begin(transcript.Start{
		Task:     task,
		Source:   source,
		Provider: a.cfg.Provider,
		Model:    a.cfg.Model,
	})
	recorded := err == nil
	if !recorded {
		runID = uuid.NewString()
		a.logger.Warn("record run start failed, running unrecorded", "run_id", runID, "err", err)
	}

	agent := agentloop.NewAgent(a.client, a.registry, agentloop.AgentOptions{
		MaxIterations: maxIterations,
		Model:         a.cfg.Model,
		System:        a.cfg.SystemPrompt,
		MaxTokens:     a.cfg.MaxTokens,
		Logger:        a.logger.With("component", "agent"),
		Observer:      req.Observer,
		TraceRaw:      a.cfg.TraceRaw,
	})
	runCtx := agentloop.WithRunScope(ctx, agentloop.RunScope{RunID: runID, Source: source, ResponsesStore: a.cfg.OpenAIStore})
	if len(a.cfg.EnabledTools) > 0 {
		runCtx = agentloop.WithAllowedToolNames(runCtx, a.cfg.EnabledTools)
	}

	text, runErr := agent.Run(runCtx, task)
	result := Result{
		RunID:      runID,
		State:      agent.State(),
		FinalText:  text,
		Iterations: agent.Iterations(),
	}
	if !recorded {
		return result, runErr
	}
	if err := a.transcripts.Finish(runID, transcript.Outcome{
		State:      result.State,
		FinalText:  text,
		Err:        runErr,
		Iterations: result.Iterations,
		Messages:   agent.History(),
	}); err != nil {
		a.logger.Warn("record run outcome failed", "run_id", runID, "err", err)
	}
	return result, runErr
}

func (a *Application) Shutdown(context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	for _, srv := range a.mcpServers {
		if err := srv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mcp server %s: %w", srv.Name(), err))
		}
	}
	a.mcpServers = nil
	if a.gdb != nil {
		if err := db.Close(a.gdb); err != nil {
			errs = append(errs, err)
		}
		a.gdb = nil
	}
	return errors.Join(errs...)
}
