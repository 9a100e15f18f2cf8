package global

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	configTOMLFileName = "config.toml"
)

type MCPServer struct {
	Name    string            `toml:"name"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty"`
}

// GlobalConfig is the persisted config.toml. Zero values mean "not set" and
// fall through to the built-in defaults.
type GlobalConfig struct {
	Provider      string      `toml:"provider"`
	Model         string      `toml:"model,omitempty"`
	MaxIterations int         `toml:"max_iterations"`
	MaxTokens     int         `toml:"max_tokens"`
	SystemPrompt  string      `toml:"system_prompt,omitempty"`
	LocalPort     int         `toml:"local_port"`
	// OpenAIStore asks the Responses API to keep responses server-side.
	OpenAIStore   bool        `toml:"openai_store,omitempty"`
	EnabledTools  []string    `toml:"enabled_tools,omitempty"`
	MCPServers    []MCPServer `toml:"mcp_servers,omitempty"`
}

type ConfigStore struct {
	dir string
}

func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{dir: dir}
}

func (s *ConfigStore) Path() string {
	return filepath.Join(s.dir, configTOMLFileName)
}

func (s *ConfigStore) LoadOrInit() (GlobalConfig, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return GlobalConfig{}, err
	}

	path := s.Path()
	if b, err := os.ReadFile(path); err == nil {
		var cfg GlobalConfig
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return GlobalConfig{}, err
		}
		return normalizeConfig(cfg), nil
	} else if !os.IsNotExist(err) {
		return GlobalConfig{}, err
	}

	cfg := normalizeConfig(GlobalConfig{})
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigStore) Save(cfg GlobalConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(s.Path(), normalizeConfig(cfg))
}

func normalizeConfig(cfg GlobalConfig) GlobalConfig {
	// Unknown providers are kept so config validation can report them.
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.LocalPort <= 0 {
		cfg.LocalPort = 4621
	}
	cfg.EnabledTools = normalizeNames(cfg.EnabledTools)
	servers := make([]MCPServer, 0, len(cfg.MCPServers))
	for _, srv := range cfg.MCPServers {
		srv.Name = strings.TrimSpace(srv.Name)
		srv.Command = strings.TrimSpace(srv.Command)
		if srv.Name == "" || srv.Command == "" {
			continue
		}
		servers = append(servers, srv)
	}
	cfg.MCPServers = servers
	return cfg
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, item := range names {
		name := strings.TrimSpace(item)
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
