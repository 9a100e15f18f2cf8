package application

import (
	"log/slog"
	"net/http"

	"gitagent/cli/internal/agentloop"
	"gitagent/cli/internal/builtintools"
	"gitagent/cli/internal/config"
)

// StartOptions defines everything StartApplication needs. Hooks replace the
// pieces that talk to the outside world.
type StartOptions struct {
	Config  config.Config
	WorkDir string
	Logger  *slog.Logger
	// Inspect starts without a completion client or MCP servers, for
	// commands that only read the registry and transcripts.
	Inspect bool
	Hooks   Hooks
}

type Hooks struct {
	// Completion replaces the provider client built from Config.
	Completion agentloop.CompletionAPI
	// Runner replaces the os/exec runner used by the git tools.
	Runner     builtintools.CommandRunner
	HTTPClient *http.Client
	// SkipMCP leaves configured MCP servers unattached.
	SkipMCP bool
}
