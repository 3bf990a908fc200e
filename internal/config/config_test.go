package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hearth.yaml", "agent:\n  model: gpt-4o\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Model != "gpt-4o" {
		t.Fatalf("expected model gpt-4o, got %q", cfg.Agent.Model)
	}
	if cfg.Server.Port != 8090 {
		t.Fatalf("expected default port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Tools.Timeout != 60*time.Second {
		t.Fatalf("expected default tool timeout 60s, got %v", cfg.Tools.Timeout)
	}
	if cfg.Agent.TransferDepth != 8 {
		t.Fatalf("expected default transfer depth 8, got %d", cfg.Agent.TransferDepth)
	}
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "agent:\n  model: base-model\nserver:\n  port: 9000\n")
	path := writeFile(t, dir, "hearth.yaml", "$include: base.yaml\nagent:\n  model: override-model\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Model != "override-model" {
		t.Fatalf("expected including file to win, got %q", cfg.Agent.Model)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected included port 9000, got %d", cfg.Server.Port)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := filepath.Join(dir, "a.yaml")
	writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hearth.yaml", "no_such_section:\n  value: 1\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"HEARTH_MODEL":      "gpt-4.1",
		"HEARTH_PORT":       "8181",
		"HEARTH_HA_ENABLED": "true",
		"HEARTH_HA_URL":     "http://ha.local:8123",
		"HEARTH_HA_TOKEN":   "secret",
		"HEARTH_SHELL_MODE": "permissive",
	}
	applyEnvOverrides(cfg, func(key string) string { return env[key] })

	if cfg.Agent.Model != "gpt-4.1" {
		t.Fatalf("expected env model override, got %q", cfg.Agent.Model)
	}
	if cfg.Server.Port != 8181 {
		t.Fatalf("expected env port override, got %d", cfg.Server.Port)
	}
	if !cfg.HomeAssistant.Enabled || cfg.HomeAssistant.URL != "http://ha.local:8123" {
		t.Fatalf("expected HA env overrides, got %+v", cfg.HomeAssistant)
	}
	if cfg.Tools.Shell.Mode != "permissive" {
		t.Fatalf("expected shell mode override, got %q", cfg.Tools.Shell.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsBadShellMode(t *testing.T) {
	cfg := Default()
	cfg.Tools.Shell.Mode = "elevated"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown shell mode")
	}
}

func TestValidateRejectsDuplicateMCPIDs(t *testing.T) {
	cfg := Default()
	cfg.MCPServers = []MCPServerConfig{
		{ID: "a", Name: "one"},
		{ID: "a", Name: "two"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate mcp ids")
	}
}

func TestModelFor(t *testing.T) {
	cfg := Default()
	cfg.Agent.Model = "base"
	cfg.Agent.Overrides = map[string]string{"scout": "fast-model"}

	if got := cfg.ModelFor("scout"); got != "fast-model" {
		t.Fatalf("ModelFor(scout) = %q, want fast-model", got)
	}
	if got := cfg.ModelFor("axel"); got != "base" {
		t.Fatalf("ModelFor(axel) = %q, want base", got)
	}
}
