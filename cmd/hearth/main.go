// Package main is the CLI entry point for the Hearth multi-agent home
// orchestration runtime.
//
// Hearth runs a hierarchy of model-backed agents behind an HTTP/WebSocket
// gateway and, when configured, keeps a live mirror of a Home Assistant
// hub's entity state for the agents to query and control.
//
// # Basic Usage
//
// Start the server:
//
//	hearth serve --config hearth.yaml
//
// Check a configuration file without starting anything:
//
//	hearth validate --config hearth.yaml
//
// # Environment Variables
//
// Any configuration field can be overridden with HEARTH_* environment
// variables, for example:
//
//   - HEARTH_AGENT_PROVIDER_API_KEY: model provider API key
//   - HEARTH_HOME_ASSISTANT_TOKEN: Home Assistant long-lived access token
//   - HEARTH_SERVER_PORT: HTTP/WebSocket listen port
package main

import (
	"log/slog"
	"os"
)

// Build information, populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	// Default logger for startup failures before the config is loaded;
	// serve replaces it with the configured one.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}
