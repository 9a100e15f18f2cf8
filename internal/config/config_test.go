package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gitagent/cli/internal/agentloop"
	"gitagent/cli/internal/global"
)

var configEnvKeys = []string{
	"GITAGENT_PROVIDER", "GITAGENT_MODEL", "GITAGENT_MAX_ITERATIONS", "GITAGENT_MAX_TOKENS",
	"GITAGENT_LOG_LEVEL", "GITAGENT_TRACE_RAW", "GITAGENT_DB_PATH", "GITAGENT_LISTEN_HOST",
	"GITAGENT_LISTEN_PORT", "GITAGENT_CONFIG_DIR", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL",
	"OPENAI_API_KEY", "OPENAI_ENDPOINT", "OPENAI_MODEL", "GITAGENT_LOG_FORMAT", "GITAGENT_OPENAI_STORE",
	"XDG_CONFIG_HOME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s failed: %v", path, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg, err := Load(LoadOptions{ConfigDir: dir, EnvFile: filepath.Join(dir, "missing.env")})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != ProviderAnthropic || cfg.Model != agentloop.DefaultAnthropicModel {
		t.Fatalf("unexpected provider/model: %s %s", cfg.Provider, cfg.Model)
	}
	if cfg.MaxIterations != 10 || cfg.MaxTokens != 1024 {
		t.Fatalf("unexpected limits: %d %d", cfg.MaxIterations, cfg.MaxTokens)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" || cfg.TraceRaw || cfg.OpenAIStore {
		t.Fatalf("unexpected logging: %s %v", cfg.LogLevel, cfg.TraceRaw)
	}
	if cfg.DBPath != filepath.Join(dir, "gitagent.db") {
		t.Fatalf("unexpected db path: %s", cfg.DBPath)
	}
	if cfg.ListenAddr() != "127.0.0.1:4621" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr())
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Fatalf("expected config.toml to be initialized: %v", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := global.NewConfigStore(dir).Save(global.GlobalConfig{
		Provider:      "openai",
		Model:         "from-toml",
		MaxIterations: 3,
		MaxTokens:     512,
		SystemPrompt:  "be terse",
		EnabledTools:  []string{"read_file"},
	}); err != nil {
		t.Fatalf("save toml failed: %v", err)
	}
	envFile := filepath.Join(dir, ".env")
	writeFile(t, envFile, "GITAGENT_MODEL=from-dotenv\nGITAGENT_MAX_ITERATIONS=5\nOPENAI_API_KEY=dotenv-key\n")
	t.Setenv("GITAGENT_MAX_ITERATIONS", "7")

	cfg, err := Load(LoadOptions{ConfigDir: dir, EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxIterations != 7 {
		t.Fatalf("process env must win, got %d", cfg.MaxIterations)
	}
	if cfg.Model != "from-dotenv" {
		t.Fatalf(".env must beat config.toml, got %q", cfg.Model)
	}
	if cfg.Provider != ProviderOpenAI || cfg.MaxTokens != 512 || cfg.SystemPrompt != "be terse" {
		t.Fatalf("config.toml values missing: %#v", cfg)
	}
	if cfg.OpenAIAPIKey != "dotenv-key" {
		t.Fatalf("expected key from .env, got %q", cfg.OpenAIAPIKey)
	}
	if len(cfg.EnabledTools) != 1 || cfg.EnabledTools[0] != "read_file" {
		t.Fatalf("unexpected enabled tools: %#v", cfg.EnabledTools)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoad_OpenAIModelFallback(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("GITAGENT_PROVIDER", "openai")
	t.Setenv("OPENAI_MODEL", "gpt-test")
	cfg, err := Load(LoadOptions{ConfigDir: dir, EnvFile: filepath.Join(dir, "none")})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "gpt-test" {
		t.Fatalf("expected OPENAI_MODEL fallback, got %q", cfg.Model)
	}
}

func TestLoad_RejectsMalformedInteger(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("GITAGENT_MAX_ITERATIONS", "ten")
	_, err := Load(LoadOptions{ConfigDir: dir, EnvFile: filepath.Join(dir, "none")})
	if !errors.Is(err, agentloop.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{Provider: ProviderAnthropic, MaxIterations: 10, MaxTokens: 1024}
	err := cfg.Validate()
	if !errors.Is(err, agentloop.ErrConfiguration) || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
	cfg.AnthropicAPIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Provider = "ollama"
	if err := cfg.Validate(); !errors.Is(err, agentloop.ErrConfiguration) {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestLoad_DotenvSetsConfigDirAndLogging(t *testing.T) {
	clearEnv(t)
	work := t.TempDir()
	cfgDir := filepath.Join(work, "agent-config")
	envFile := filepath.Join(work, ".env")
	writeFile(t, envFile, "GITAGENT_CONFIG_DIR="+cfgDir+"\nGITAGENT_LOG_FORMAT=TEXT\n")
	if err := global.NewConfigStore(cfgDir).Save(global.GlobalConfig{OpenAIStore: true}); err != nil {
		t.Fatalf("save toml failed: %v", err)
	}

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ConfigDir != cfgDir {
		t.Fatalf("expected config dir from .env, got %q", cfg.ConfigDir)
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("expected text log format, got %q", cfg.LogFormat)
	}
	if !cfg.OpenAIStore {
		t.Fatal("expected openai_store from config.toml")
	}

	t.Setenv("GITAGENT_OPENAI_STORE", "false")
	if cfg, err = Load(LoadOptions{EnvFile: envFile}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.OpenAIStore {
		t.Fatal("process env must override openai_store")
	}

	t.Setenv("GITAGENT_OPENAI_STORE", "maybe")
	if _, err := Load(LoadOptions{EnvFile: envFile}); !errors.Is(err, agentloop.ErrConfiguration) {
		t.Fatalf("expected configuration error for bad bool, got %v", err)
	}
}

func TestValidate_RejectsUnknownProviderFromTOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.toml"), "provider = 'ollama'\n")
	cfg, err := Load(LoadOptions{ConfigDir: dir, EnvFile: filepath.Join(dir, "none")})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "ollama" {
		t.Fatalf("expected provider kept, got %q", cfg.Provider)
	}
	if err := cfg.Validate(); !errors.Is(err, agentloop.ErrConfiguration) || !strings.Contains(err.Error(), `unknown provider "ollama"`) {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestValidate_RejectsUnknownLogFormat(t *testing.T) {
	cfg := Config{Provider: ProviderAnthropic, AnthropicAPIKey: "k", MaxIterations: 1, MaxTokens: 1, LogFormat: "xml"}
	if err := cfg.Validate(); !errors.Is(err, agentloop.ErrConfiguration) {
		t.Fatalf("expected log format error, got %v", err)
	}
}
