package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"gitagent/cli/internal/agentloop"
	"gitagent/cli/internal/global"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	defaultOpenAIModel = "gpt-5-mini"
	defaultListenHost  = "127.0.0.1"
	dbFileName         = "gitagent.db"
)

type Config struct {
	Provider      string
	Model         string
	MaxIterations int
	MaxTokens     int
	SystemPrompt  string
	LogLevel      string
	LogFormat     string
	TraceRaw      bool
	DBPath        string
	ConfigDir     string
	ListenHost    string
	ListenPort    int
	EnabledTools  []string
	MCPServers    []global.MCPServer

	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIEndpoint   string
	OpenAIModel      string
	// OpenAIStore sets store=true on Responses API requests.
	OpenAIStore      bool
}

type LoadOptions struct {
	// EnvFile is read for keys missing from the process environment.
	// Defaults to ".env"; a missing file is not an error.
	EnvFile string
	// ConfigDir overrides GITAGENT_CONFIG_DIR and the home default.
	ConfigDir string
}

// Load resolves configuration from the process environment, then the .env
// file, then config.toml, then defaults.
func Load(opts LoadOptions) (Config, error) {
	lookup, err := newLookup(opts.EnvFile)
	if err != nil {
		return Config{}, err
	}

	dir := strings.TrimSpace(opts.ConfigDir)
	if dir == "" {
		if dir, err = global.ConfigDir(lookup.get); err != nil {
			return Config{}, fmt.Errorf("%w: resolve config dir: %w", agentloop.ErrConfiguration, err)
		}
	}
	file, err := global.NewConfigStore(dir).LoadOrInit()
	if err != nil {
		return Config{}, fmt.Errorf("%w: load %s: %w", agentloop.ErrConfiguration, filepath.Join(dir, "config.toml"), err)
	}

	cfg := Config{
		Provider:         strings.ToLower(firstNonEmpty(lookup.get("GITAGENT_PROVIDER"), file.Provider, ProviderAnthropic)),
		SystemPrompt:     file.SystemPrompt,
		LogLevel:         firstNonEmpty(lookup.get("GITAGENT_LOG_LEVEL"), "info"),
		LogFormat:        strings.ToLower(firstNonEmpty(lookup.get("GITAGENT_LOG_FORMAT"), "json")),
		TraceRaw:         lookup.get("GITAGENT_TRACE_RAW") == "1",
		DBPath:           firstNonEmpty(lookup.get("GITAGENT_DB_PATH"), filepath.Join(dir, dbFileName)),
		ConfigDir:        dir,
		ListenHost:       firstNonEmpty(lookup.get("GITAGENT_LISTEN_HOST"), defaultListenHost),
		EnabledTools:     file.EnabledTools,
		MCPServers:       file.MCPServers,
		AnthropicAPIKey:  lookup.get("ANTHROPIC_API_KEY"),
		AnthropicBaseURL: lookup.get("ANTHROPIC_BASE_URL"),
		OpenAIAPIKey:     lookup.get("OPENAI_API_KEY"),
		OpenAIEndpoint:   lookup.get("OPENAI_ENDPOINT"),
		OpenAIModel:      lookup.get("OPENAI_MODEL"),
	}
	if cfg.MaxIterations, err = lookup.intOr("GITAGENT_MAX_ITERATIONS", file.MaxIterations); err != nil {
		return Config{}, err
	}
	if cfg.MaxTokens, err = lookup.intOr("GITAGENT_MAX_TOKENS", file.MaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.ListenPort, err = lookup.intOr("GITAGENT_LISTEN_PORT", file.LocalPort); err != nil {
		return Config{}, err
	}
	if cfg.OpenAIStore, err = lookup.boolOr("GITAGENT_OPENAI_STORE", file.OpenAIStore); err != nil {
		return Config{}, err
	}
	cfg.Model = firstNonEmpty(lookup.get("GITAGENT_MODEL"), file.Model)
	cfg.ResolveModel()
	return cfg, nil
}

// ResolveModel fills Model with the provider default when it is unset.
func (c *Config) ResolveModel() {
	if strings.TrimSpace(c.Model) != "" {
		return
	}
	switch c.Provider {
	case ProviderOpenAI:
		c.Model = firstNonEmpty(c.OpenAIModel, defaultOpenAIModel)
	default:
		c.Model = agentloop.DefaultAnthropicModel
	}
}

// Validate checks what the selected provider needs. Errors wrap
// agentloop.ErrConfiguration.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderAnthropic:
		if strings.TrimSpace(c.AnthropicAPIKey) == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for provider anthropic"))
		}
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for provider openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations))
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.LogFormat))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", agentloop.ErrConfiguration, errors.Join(errs...))
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

type lookup struct {
	dotenv map[string]string
}

func newLookup(envFile string) (lookup, error) {
	if strings.TrimSpace(envFile) == "" {
		envFile = ".env"
	}
	values, err := godotenv.Read(envFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lookup{dotenv: map[string]string{}}, nil
		}
		return lookup{}, fmt.Errorf("%w: read %s: %w", agentloop.ErrConfiguration, envFile, err)
	}
	return lookup{dotenv: values}, nil
}

// get prefers a non-empty process variable over the .env value.
func (l lookup) get(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(l.dotenv[key])
}

func (l lookup) intOr(key string, fallback int) (int, error) {
	raw := l.get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", agentloop.ErrConfiguration, key, raw)
	}
	return n, nil
}

func (l lookup) boolOr(key string, fallback bool) (bool, error) {
	raw := l.get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", agentloop.ErrConfiguration, key, raw)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
