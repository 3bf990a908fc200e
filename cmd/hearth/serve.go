package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/agent/providers"
	"github.com/hearthd/hearth/internal/config"
	"github.com/hearthd/hearth/internal/gateway"
	"github.com/hearthd/hearth/internal/hass"
	"github.com/hearthd/hearth/internal/history"
	"github.com/hearthd/hearth/internal/observability"
	"github.com/hearthd/hearth/internal/session"
	"github.com/hearthd/hearth/internal/tools/crawl"
	"github.com/hearthd/hearth/internal/tools/files"
	"github.com/hearthd/hearth/internal/tools/homeassistant"
	"github.com/hearthd/hearth/internal/tools/memorynotes"
	"github.com/hearthd/hearth/internal/tools/shell"
	"github.com/hearthd/hearth/internal/tools/todo"
	"github.com/hearthd/hearth/internal/tools/utility"
	"github.com/hearthd/hearth/internal/tools/websearch"
	"github.com/hearthd/hearth/internal/transfer"
)

// rootAgent is the agent every new session starts at.
const rootAgent = "main"

const shutdownTimeout = 10 * time.Second

// runServe wires the full runtime and blocks until shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadServeConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slogger := log.Slog()
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := history.Open(cfg.History.Driver, cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	var ha *hass.Client
	if cfg.HomeAssistant.Enabled {
		cache := hass.NewStateCache(slogger)
		ha = hass.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, cache,
			hass.WithClientLogger(slogger), hass.WithMetrics(metrics))
		if err := ha.Start(ctx); err != nil {
			return fmt.Errorf("start home assistant client: %w", err)
		}
		defer ha.Stop()
	}

	registry := agent.NewRegistry(cfg.Tools.Timeout, slogger)
	registry.SetMetrics(metrics)
	library, err := buildToolLibrary(cfg, registry, ha)
	if err != nil {
		return fmt.Errorf("build tool library: %w", err)
	}

	controller, err := buildAgents(cfg, library, ha != nil)
	if err != nil {
		return fmt.Errorf("build agents: %w", err)
	}

	provider := providers.NewOpenAIProvider(cfg.Agent.Provider.APIKey, cfg.Agent.Provider.BaseURL)

	manager := session.NewManager(rootAgent, session.Deps{
		Provider:         provider,
		Registry:         registry,
		Controller:       controller,
		Store:            store,
		Logger:           slogger,
		MaxTransferDepth: cfg.Agent.TransferDepth,
		Metrics:          metrics,
	})

	server := gateway.NewServer(gateway.Config{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	}, gateway.Deps{
		Manager:    manager,
		Controller: controller,
		Registry:   registry,
		Root:       rootAgent,
		Metrics:    metrics,
		Logger:     slogger,
		HA:         ha,
	})

	// Hot reload re-applies per-agent model overrides; structural changes
	// (new agents, toolset membership) still require a restart.
	watcher, err := config.NewWatcher(configPath, slogger, func(next *config.Config) {
		applyModelOverrides(ctx, log, controller, next)
	})
	if err != nil {
		log.Warn(ctx, "config watcher unavailable", "path", configPath, "error", err)
	} else {
		go watcher.Run(ctx)
	}

	log.Info(ctx, "hearth starting",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"agents", controller.Agents(),
		"toolsets", library.Names(),
		"provider", provider.Name(),
		"home_assistant", cfg.HomeAssistant.Enabled,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadServeConfig loads the config file; a missing file at the default
// path falls back to built-in defaults so a bare `hearth serve` works.
func loadServeConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildToolLibrary constructs every tool, registers it for guarded
// execution, and groups the tools into the named toolsets agents select
// from. Toolset membership is fixed here; only agent construction chooses
// among them.
func buildToolLibrary(cfg *config.Config, registry *agent.Registry, ha *hass.Client) (*agent.Library, error) {
	library := agent.NewLibrary()

	workspace := cfg.Tools.Files.Root
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workspace = wd
	}

	utilityTools := []agent.Tool{utility.NewTimeTool()}

	filesCfg := files.Config{Workspace: workspace}
	filesystemTools := []agent.Tool{
		files.NewReadTool(filesCfg),
		files.NewWriteTool(filesCfg),
		files.NewListTool(filesCfg),
	}

	searchTools := []agent.Tool{
		websearch.NewSearchTool(websearch.Config{SearXNGURL: cfg.Tools.Search.Endpoint}),
		websearch.NewFetchTool(),
	}

	shellTool := shell.New(shell.Config{
		Mode:    shell.Mode(cfg.Tools.Shell.Mode),
		Allow:   cfg.Tools.Shell.Allow,
		WorkDir: workspace,
	})

	todoTool := todo.New(todo.NewStore())
	notesTool := memorynotes.New(memorynotes.NewStore())

	sets := map[string][]agent.Tool{
		"utility":    utilityTools,
		"filesystem": filesystemTools,
		"web-search": searchTools,
		"shell":      {shellTool},
		"todo":       {todoTool},
		"memory":     {notesTool},
	}

	if cfg.Integrations.Crawl4AI.Enabled {
		collection := cfg.VectorDB.Collection
		if collection == "" {
			collection = "pages"
		}
		client := crawl.NewClient(crawl.Config{
			APIURL:     cfg.Integrations.Crawl4AI.APIURL,
			APIToken:   cfg.Integrations.Crawl4AI.APIToken,
			Collection: collection,
		})
		// No embedded vector store ships with the runtime; crawled pages
		// are returned inline until an external store is wired in.
		sets["crawl"] = []agent.Tool{crawl.NewTool(client, nil)}
	}

	if ha != nil {
		source := ha.Cache()
		sets["home-assistant"] = []agent.Tool{
			homeassistant.NewSearchTool(source),
			homeassistant.NewGetStateTool(source),
			homeassistant.NewTurnOnTool(source, ha),
			homeassistant.NewTurnOffTool(source, ha),
			homeassistant.NewCallServiceTool(source, ha),
		}
	}

	for name, tools := range sets {
		for _, tool := range tools {
			if err := registry.Register(tool); err != nil {
				return nil, err
			}
		}
		library.Add(name, tools...)
	}

	// Specialist bundles reference tools already registered above.
	library.Add("scout", searchTools...)
	if crawlTools, ok := sets["crawl"]; ok {
		library.Add("scout", crawlTools...)
	}
	library.Add("axel", filesystemTools...)
	library.Add("axel", shellTool)

	return library, nil
}

// buildAgents constructs the agent hierarchy: a root orchestrator plus the
// scout (research), axel (files and shell), and beto (home control)
// specialists. Every specialist may hand the conversation back to the root.
func buildAgents(cfg *config.Config, library *agent.Library, haEnabled bool) (*transfer.Controller, error) {
	controller := transfer.NewController()

	mainSets := []string{"utility", "todo", "memory"}
	betoSets := []string{"utility"}
	if haEnabled {
		mainSets = append(mainSets, "home-assistant")
		betoSets = append(betoSets, "home-assistant")
	}

	specs := []struct {
		name        string
		instruction string
		toolsets    []string
		subAgents   []string
		transfers   []string
	}{
		{
			name: rootAgent,
			instruction: "You are the household orchestrator. Answer directly when you can. " +
				"Hand research questions to scout, hands-on file or command work to axel, " +
				"and device control to beto. Keep responses short and concrete.",
			toolsets:  mainSets,
			subAgents: []string{"scout", "axel", "beto"},
			transfers: []string{"scout", "axel", "beto"},
		},
		{
			name: "scout",
			instruction: "You are a research specialist. Search the web, fetch and read pages, " +
				"and report findings with sources. Transfer back to main when done.",
			toolsets:  []string{"scout", "utility"},
			transfers: []string{rootAgent},
		},
		{
			name: "axel",
			instruction: "You are a hands-on executor. Read, write, and list files in the " +
				"workspace and run allowed commands. Transfer back to main when done.",
			toolsets:  []string{"axel", "utility"},
			transfers: []string{rootAgent},
		},
		{
			name: "beto",
			instruction: "You are the home control specialist. Resolve entities with " +
				"search_entities before acting, then read or change their state. " +
				"Transfer back to main when done.",
			toolsets:  betoSets,
			transfers: []string{rootAgent},
		},
	}

	for _, spec := range specs {
		tools, err := library.Union(spec.toolsets...)
		if err != nil {
			return nil, err
		}
		a, err := agent.New(agent.Config{
			Name:             spec.name,
			Model:            cfg.ModelFor(spec.name),
			Instruction:      spec.instruction,
			Tools:            tools,
			SubAgents:        spec.subAgents,
			AllowedTransfers: spec.transfers,
		})
		if err != nil {
			return nil, err
		}
		if err := controller.Register(a); err != nil {
			return nil, err
		}
	}

	if err := controller.Resolve(); err != nil {
		return nil, err
	}
	return controller, nil
}

// applyModelOverrides reconciles live agents with a freshly loaded config.
func applyModelOverrides(ctx context.Context, log *observability.Logger, controller *transfer.Controller, next *config.Config) {
	for _, name := range controller.Agents() {
		current, ok := controller.Get(name)
		if !ok {
			continue
		}
		model := next.ModelFor(name)
		if model == "" || model == current.Model() {
			continue
		}
		if err := controller.SetModel(name, model); err != nil {
			log.Warn(ctx, "model override not applied", "agent", name, "error", err)
			continue
		}
		log.Info(ctx, "agent model updated", "agent", name, "model", model)
	}
}
