package main

import (
	"context"
	"testing"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/config"
	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/internal/observability"
)

func buildTestRuntime(t *testing.T) (*config.Config, *agent.Library, *agent.Registry) {
	t.Helper()
	cfg := config.Default()
	cfg.Tools.Files.Root = t.TempDir()

	registry := agent.NewRegistry(cfg.Tools.Timeout, nil)
	library, err := buildToolLibrary(cfg, registry, nil)
	if err != nil {
		t.Fatalf("buildToolLibrary() error = %v", err)
	}
	return cfg, library, registry
}

func TestBuildToolLibraryDefaults(t *testing.T) {
	_, library, registry := buildTestRuntime(t)

	for _, set := range []string{"utility", "filesystem", "web-search", "shell", "todo", "memory", "scout", "axel"} {
		if _, err := library.Union(set); err != nil {
			t.Fatalf("Union(%s) error = %v", set, err)
		}
	}
	// Home Assistant and crawl are disabled by default.
	if _, err := library.Union("home-assistant"); err == nil {
		t.Fatal("expected unknown toolset for home-assistant")
	}

	for _, name := range []string{"run_command", "read_file", "write_file", "list_directory", "web_search", "fetch_page", "manage_todos", "memory_notes", "get_current_time"} {
		if _, ok := registry.Get(name); !ok {
			t.Fatalf("tool %q not registered", name)
		}
	}
}

func TestBuildAgentsHierarchy(t *testing.T) {
	cfg, library, _ := buildTestRuntime(t)
	cfg.Agent.Overrides = map[string]string{"scout": "model-scout"}

	controller, err := buildAgents(cfg, library, false)
	if err != nil {
		t.Fatalf("buildAgents() error = %v", err)
	}

	want := []string{"axel", "beto", "main", "scout"}
	got := controller.Agents()
	if len(got) != len(want) {
		t.Fatalf("Agents() = %v, want %v", got, want)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("Agents() = %v, want %v", got, want)
		}
	}

	if _, err := controller.Transfer("main", "scout"); err != nil {
		t.Fatalf("Transfer(main, scout) error = %v", err)
	}
	if _, err := controller.Transfer("scout", "main"); err != nil {
		t.Fatalf("Transfer(scout, main) error = %v", err)
	}
	if _, err := controller.Transfer("scout", "axel"); !fault.IsKind(err, fault.TransferDenied) {
		t.Fatalf("Transfer(scout, axel) error = %v, want TransferDenied", err)
	}

	scout, _ := controller.Get("scout")
	if scout.Model() != "model-scout" {
		t.Fatalf("scout model = %q, want override", scout.Model())
	}
	root, _ := controller.Get("main")
	if root.Model() != cfg.Agent.Model {
		t.Fatalf("main model = %q, want default %q", root.Model(), cfg.Agent.Model)
	}
}

func TestApplyModelOverrides(t *testing.T) {
	cfg, library, _ := buildTestRuntime(t)
	controller, err := buildAgents(cfg, library, false)
	if err != nil {
		t.Fatalf("buildAgents() error = %v", err)
	}

	next := config.Default()
	next.Agent.Model = cfg.Agent.Model
	next.Agent.Overrides = map[string]string{"beto": "model-beto"}

	log := observability.NewLogger(observability.LogConfig{Level: "error"})
	applyModelOverrides(context.Background(), log, controller, next)

	beto, _ := controller.Get("beto")
	if beto.Model() != "model-beto" {
		t.Fatalf("beto model = %q, want model-beto", beto.Model())
	}
	root, _ := controller.Get("main")
	if root.Model() != cfg.Agent.Model {
		t.Fatalf("main model changed to %q", root.Model())
	}
}

func TestLoadServeConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := loadServeConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Fatalf("default port = %d, want 8090", cfg.Server.Port)
	}
}
