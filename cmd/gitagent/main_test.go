package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"gitagent/cli/internal/config"
	"gitagent/cli/internal/logging"
)

func TestMigrateUp_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gitagent.db")
	if err := migrateUp(config.Config{DBPath: path}, logging.Discard()); err != nil {
		t.Fatalf("migrateUp failed: %v", err)
	}
	if err := migrateUp(config.Config{DBPath: path}, logging.Discard()); err != nil {
		t.Fatalf("second migrateUp failed: %v", err)
	}
}

func TestRun_MissingAPIKeyFails(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GITAGENT_CONFIG_DIR", dir)
	t.Setenv("GITAGENT_DB_PATH", filepath.Join(dir, "gitagent.db"))
	t.Setenv("GITAGENT_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"gitagent", "run", "hello"}, strings.NewReader(""), &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected config error in log, got %q", stderr.String())
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"gitagent", "--version"}, strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("unexpected exit code %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "dev") {
		t.Fatalf("expected version output, got %q", stdout.String())
	}
}

func TestRun_InspectCommandsNeedNoAPIKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GITAGENT_CONFIG_DIR", dir)
	t.Setenv("GITAGENT_DB_PATH", filepath.Join(dir, "gitagent.db"))
	t.Setenv("GITAGENT_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Chdir(dir)

	for _, args := range [][]string{{"gitagent", "history", "list"}, {"gitagent", "tools"}} {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr); code != 0 {
			t.Fatalf("%v: exit %d, stderr %q", args, code, stderr.String())
		}
		if stdout.Len() == 0 {
			t.Fatalf("%v: expected output", args)
		}
	}
}

func TestRun_LogFormatFromConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GITAGENT_CONFIG_DIR", dir)
	t.Setenv("GITAGENT_DB_PATH", filepath.Join(dir, "gitagent.db"))
	t.Setenv("GITAGENT_LOG_FORMAT", "text")
	t.Setenv("GITAGENT_LOG_LEVEL", "info")
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"gitagent", "migrate", "up"}, strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d, stderr %q", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), `msg="migrations applied"`) {
		t.Fatalf("expected text log line, got %q", stderr.String())
	}
}
