package global

import (
	"path/filepath"
	"testing"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestConfigDir_UsesOverride(t *testing.T) {
	got, err := ConfigDir(envMap(map[string]string{
		"GITAGENT_CONFIG_DIR": "/tmp/gitagent-config-test/",
		"XDG_CONFIG_HOME":     "/tmp/xdg",
	}))
	if err != nil {
		t.Fatalf("ConfigDir returned error: %v", err)
	}
	if got != "/tmp/gitagent-config-test" {
		t.Fatalf("expected override path, got %q", got)
	}
}

func TestConfigDir_UsesXDGConfigHome(t *testing.T) {
	got, err := ConfigDir(envMap(map[string]string{"XDG_CONFIG_HOME": "/tmp/xdg"}))
	if err != nil {
		t.Fatalf("ConfigDir returned error: %v", err)
	}
	if got != filepath.Join("/tmp/xdg", "gitagent") {
		t.Fatalf("unexpected dir %q", got)
	}
}

func TestConfigDir_IgnoresRelativeXDG(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := ConfigDir(envMap(map[string]string{"XDG_CONFIG_HOME": "relative/dir"}))
	if err != nil {
		t.Fatalf("ConfigDir returned error: %v", err)
	}
	if got != filepath.Join(home, ".config", "gitagent") {
		t.Fatalf("unexpected dir %q", got)
	}
}

func TestConfigDir_NilGetenvReadsProcessEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GITAGENT_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", home)
	got, err := ConfigDir(nil)
	if err != nil {
		t.Fatalf("ConfigDir returned error: %v", err)
	}
	if got != filepath.Join(home, ".config", "gitagent") {
		t.Fatalf("unexpected dir %q", got)
	}
}
