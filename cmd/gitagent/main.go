package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gitagent/cli/internal/application"
	"gitagent/cli/internal/command"
	"gitagent/cli/internal/config"
	"gitagent/cli/internal/db"
	"gitagent/cli/internal/lifecycle"
	"gitagent/cli/internal/logging"
	"gitagent/cli/internal/wsapi"
)

var version = "dev"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(rootCtx, os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := command.BuildApp(buildDeps(stdin, stderr))
	app.Version = version
	app.Writer = stdout
	app.ErrWriter = stderr
	if err := app.RunContext(ctx, args); err != nil {
		logging.NewLogger(logging.Options{Writer: stderr, Component: "gitagent"}).Error("command failed", "err", err)
		return 1
	}
	return 0
}

func buildDeps(stdin io.Reader, logOut io.Writer) command.Deps {
	newLogger := func(cfg config.Config) *slog.Logger {
		return logging.NewLogger(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: logOut, Component: "gitagent"})
	}
	return command.Deps{
		LoadConfig: func() (config.Config, error) {
			return config.Load(config.LoadOptions{})
		},
		StartApp: func(ctx context.Context, cfg config.Config, inspect bool) (*application.Application, error) {
			workDir, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			return application.StartApplication(ctx, application.StartOptions{
				Config:  cfg,
				WorkDir: workDir,
				Logger:  newLogger(cfg),
				Inspect: inspect,
			})
		},
		Serve: func(ctx context.Context, app *application.Application) error {
			return serve(ctx, app, newLogger(app.Config()))
		},
		MigrateUp: func(_ context.Context, cfg config.Config) error {
			return migrateUp(cfg, newLogger(cfg))
		},
		Stdin: stdin,
	}
}

func serve(ctx context.Context, app *application.Application, logger *slog.Logger) error {
	srv := wsapi.NewServer(wsapi.Deps{Executor: app, Logger: logger.With("component", "wsapi")})
	addr := app.Config().ListenAddr()

	mgr := lifecycle.NewManager(logger.With("component", "lifecycle"))
	mgr.AddRun("ws-api", func(runCtx context.Context) error {
		return srv.ListenAndServe(runCtx, addr)
	})
	return mgr.StartAndWait(ctx, os.Interrupt, syscall.SIGTERM)
}

func migrateUp(cfg config.Config, logger *slog.Logger) error {
	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", "db", cfg.DBPath)
	return db.Close(gdb)
}
