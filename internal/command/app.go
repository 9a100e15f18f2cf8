package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"gitagent/cli/internal/application"
	"gitagent/cli/internal/config"
	"gitagent/cli/internal/global"
)

const taskPrompt = "Enter your message: "

type Deps struct {
	LoadConfig func() (config.Config, error)
	// StartApp builds the application. inspect is set for commands that only
	// read tools and transcripts; no credentials or MCP servers are needed.
	StartApp   func(ctx context.Context, cfg config.Config, inspect bool) (*application.Application, error)
	Serve      func(context.Context, *application.Application) error
	MigrateUp  func(context.Context, config.Config) error
	// Stdin is read by run when no task argument is given.
	Stdin      io.Reader
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "gitagent",
		Usage: "tool-using agent for git workflows",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run one task through the agent loop",
				ArgsUsage: "[TASK...]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-iterations", Usage: "iteration cap for this run"},
					&cli.StringFlag{Name: "provider", Usage: "anthropic or openai"},
					&cli.StringFlag{Name: "model", Usage: "model name"},
				},
				Action: func(c *cli.Context) error {
					return runTask(c, deps)
				},
			},
			{
				Name:  "tools",
				Usage: "list built-in tools",
				Action: func(c *cli.Context) error {
					return withApp(c, deps, inspectMode, func(app *application.Application) error {
						return listTools(c.App.Writer, app)
					})
				},
				Subcommands: []*cli.Command{
					{
						Name:      "enable",
						Usage:     "add tools to enabled_tools in config.toml",
						ArgsUsage: "NAME...",
						Action: func(c *cli.Context) error {
							return withApp(c, deps, inspectMode, func(app *application.Application) error {
								return enableTools(c.App.Writer, app, c.Args().Slice())
							})
						},
					},
					{
						Name:      "disable",
						Usage:     "remove tools from enabled_tools in config.toml",
						ArgsUsage: "NAME...",
						Action: func(c *cli.Context) error {
							return withApp(c, deps, inspectMode, func(app *application.Application) error {
								return disableTools(c.App.Writer, app, c.Args().Slice())
							})
						},
					},
				},
			},
			{
				Name:  "history",
				Usage: "inspect recorded runs",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list recent runs",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of runs to show"},
						},
						Action: func(c *cli.Context) error {
							return withApp(c, deps, inspectMode, func(app *application.Application) error {
								return listHistory(c.App.Writer, app, c.Int("limit"))
							})
						},
					},
					{
						Name:      "show",
						Usage:     "show one run with its messages",
						ArgsUsage: "RUN_ID",
						Action: func(c *cli.Context) error {
							runID := strings.TrimSpace(c.Args().First())
							if runID == "" {
								return errors.New("run id is required")
							}
							return withApp(c, deps, inspectMode, func(app *application.Application) error {
								return showRun(c.App.Writer, app, runID)
							})
						},
					},
					{
						Name:  "clear",
						Usage: "delete all recorded runs",
						Action: func(c *cli.Context) error {
							return withApp(c, deps, inspectMode, func(app *application.Application) error {
								if err := app.Transcripts().Clear(); err != nil {
									return err
								}
								out := c.App.Writer
								fmt.Fprintln(out, "history cleared")
								return nil
							})
						},
					},
				},
			},
			{
				Name:  "serve",
				Usage: "serve the websocket agent api",
				Action: func(c *cli.Context) error {
					if deps.Serve == nil {
						return errors.New("serve runner is not configured")
					}
					return withApp(c, deps, agentMode, func(app *application.Application) error {
						return deps.Serve(c.Context, app)
					})
				},
			},
			{
				Name:  "migrate",
				Usage: "run database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: func(c *cli.Context) error {
							if deps.MigrateUp == nil {
								return errors.New("migrate up runner is not configured")
							}
							cfg, err := loadConfig(deps)
							if err != nil {
								return err
							}
							return deps.MigrateUp(c.Context, cfg)
						},
					},
				},
			},
		},
	}
}

func loadConfig(deps Deps) (config.Config, error) {
	if deps.LoadConfig == nil {
		return config.Load(config.LoadOptions{})
	}
	return deps.LoadConfig()
}

type startMode struct {
	inspect bool
	adjust  func(*config.Config)
}

var (
	agentMode   = startMode{}
	inspectMode = startMode{inspect: true}
)

func withApp(c *cli.Context, deps Deps, mode startMode, fn func(*application.Application) error) error {
	if deps.StartApp == nil {
		return errors.New("application starter is not configured")
	}
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}
	if mode.adjust != nil {
		mode.adjust(&cfg)
	}
	app, err := deps.StartApp(c.Context, cfg, mode.inspect)
	if err != nil {
		return err
	}
	runErr := fn(app)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, app.Shutdown(shutdownCtx))
}

func runTask(c *cli.Context, deps Deps) error {
	out := c.App.Writer
	task := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if task == "" {
		in := deps.Stdin
		if in == nil {
			in = os.Stdin
		}
		fmt.Fprint(out, taskPrompt)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read task: %w", err)
		}
		task = strings.TrimSpace(line)
	}
	if task == "" {
		return errors.New("task is required")
	}

	adjust := func(cfg *config.Config) {
		if p := strings.ToLower(strings.TrimSpace(c.String("provider"))); p != "" && p != cfg.Provider {
			cfg.Provider = p
			cfg.Model = ""
		}
		if m := strings.TrimSpace(c.String("model")); m != "" {
			cfg.Model = m
		}
		cfg.ResolveModel()
	}
	return withApp(c, deps, startMode{adjust: adjust}, func(app *application.Application) error {
		res, err := app.Execute(c.Context, application.ExecuteRequest{
			Task:          task,
			Source:        "cli",
			MaxIterations: c.Int("max-iterations"),
		})
		if err != nil {
			if res.RunID != "" {
				return fmt.Errorf("run %s: %w", res.RunID, err)
			}
			return err
		}
		fmt.Fprintln(out, res.FinalText)
		return nil
	})
}

func listTools(out io.Writer, app *application.Application) error {
	enabled := app.Config().EnabledTools
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENABLED\tDESCRIPTION")
	for _, spec := range app.Registry().Describe() {
		on := len(enabled) == 0 || slices.Contains(enabled, spec.Name)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", spec.Name, yesNo(on), firstLine(spec.Description))
	}
	return tw.Flush()
}

func listHistory(out io.Writer, app *application.Application, limit int) error {
	runs, err := app.Transcripts().List(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATE\tITERATIONS\tSTARTED\tTASK")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", run.RunID, run.State, run.Iterations,
			run.StartedAt.Local().Format(time.DateTime), clip(firstLine(run.Task), 60))
	}
	return tw.Flush()
}

func showRun(out io.Writer, app *application.Application, runID string) error {
	run, err := app.Transcripts().Get(runID)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	fmt.Fprintf(out, "run:        %s\n", run.RunID)
	fmt.Fprintf(out, "task:       %s\n", run.Task)
	fmt.Fprintf(out, "state:      %s\n", run.State)
	fmt.Fprintf(out, "provider:   %s %s\n", run.Provider, run.Model)
	fmt.Fprintf(out, "iterations: %d\n", run.Iterations)
	if run.Error != "" {
		fmt.Fprintf(out, "error:      %s\n", run.Error)
	}
	if run.FinalText != "" {
		fmt.Fprintf(out, "answer:     %s\n", run.FinalText)
	}
	fmt.Fprintln(out, "")
	for _, msg := range run.Messages {
		switch {
		case len(msg.ToolCalls) > 0:
			for _, call := range msg.ToolCalls {
				fmt.Fprintf(out, "[%s] -> %s %s\n", msg.Role, call.Name, string(call.Arguments))
			}
		case msg.ToolName != "":
			marker := ""
			if msg.IsError {
				marker = " (error)"
			}
			fmt.Fprintf(out, "[%s] %s%s: %s\n", msg.Role, msg.ToolName, marker, msg.Content)
		default:
			fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Content)
		}
	}
	return nil
}

func enableTools(out io.Writer, app *application.Application, names []string) error {
	names = cleanNames(names)
	if len(names) == 0 {
		return errors.New("at least one tool name is required")
	}
	store := global.NewConfigStore(app.Config().ConfigDir)
	file, err := store.LoadOrInit()
	if err != nil {
		return err
	}
	if len(file.EnabledTools) == 0 {
		fmt.Fprintln(out, "all tools are already enabled")
		return nil
	}
	for _, name := range names {
		if _, ok := app.Registry().Get(name); !ok {
			fmt.Fprintf(out, "note: %s is not a built-in tool\n", name)
		}
		if !slices.Contains(file.EnabledTools, name) {
			file.EnabledTools = append(file.EnabledTools, name)
		}
	}
	if err := store.Save(file); err != nil {
		return err
	}
	fmt.Fprintf(out, "enabled tools: %s\n", strings.Join(file.EnabledTools, ", "))
	return nil
}

// disableTools narrows enabled_tools. An empty list means every tool is on,
// so it is first expanded to the built-in tools.
func disableTools(out io.Writer, app *application.Application, names []string) error {
	names = cleanNames(names)
	if len(names) == 0 {
		return errors.New("at least one tool name is required")
	}
	store := global.NewConfigStore(app.Config().ConfigDir)
	file, err := store.LoadOrInit()
	if err != nil {
		return err
	}
	current := file.EnabledTools
	if len(current) == 0 {
		for _, spec := range app.Registry().Describe() {
			current = append(current, spec.Name)
		}
		if len(file.MCPServers) > 0 {
			fmt.Fprintln(out, "note: MCP server tools stay off until added with 'gitagent tools enable'")
		}
	}
	kept := make([]string, 0, len(current))
	for _, name := range current {
		if !slices.Contains(names, name) {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		return errors.New("cannot disable every tool")
	}
	file.EnabledTools = kept
	if err := store.Save(file); err != nil {
		return err
	}
	fmt.Fprintf(out, "enabled tools: %s\n", strings.Join(kept, ", "))
	return nil
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
