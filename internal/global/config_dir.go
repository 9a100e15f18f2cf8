package global

import (
	"os"
	"path/filepath"
	"strings"
)

const configDirName = "gitagent"

// ConfigDir picks the config directory from GITAGENT_CONFIG_DIR, then
// $XDG_CONFIG_HOME/gitagent, then ~/.config/gitagent. getenv lets callers
// layer .env values over the process environment; nil means os.Getenv.
func ConfigDir(getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if override := strings.TrimSpace(getenv("GITAGENT_CONFIG_DIR")); override != "" {
		return filepath.Clean(override), nil
	}
	if xdg := strings.TrimSpace(getenv("XDG_CONFIG_HOME")); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, configDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", configDirName), nil
}
