package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hearthd/hearth/internal/config"
)

const defaultConfigPath = "hearth.yaml"

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hearth",
		Short: "Hearth - multi-agent home orchestration runtime",
		Long: `Hearth runs a hierarchy of model-backed agents behind an HTTP/WebSocket
gateway. Agents hand conversations to each other along declared transfer
edges, call tools (filesystem, shell, web search, todo lists, notes), and
control Home Assistant entities through a live state mirror.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildValidateCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// buildServeCmd creates the "serve" command that starts the runtime.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Hearth server",
		Long: `Start the Hearth server.

The server will:
1. Load configuration from the specified file (or built-in defaults)
2. Open the chat-history store (memory or postgres)
3. Connect to Home Assistant if enabled and mirror its entity state
4. Build the tool registry, toolsets, and the agent hierarchy
5. Start the HTTP/WebSocket gateway and the metrics endpoint
6. Watch the config file and hot-apply per-agent model overrides

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with the default config file
  hearth serve

  # Start with a custom config
  hearth serve --config /etc/hearth/production.yaml

  # Start with debug logging
  hearth serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	return cmd
}

// buildValidateCmd creates the "validate" command that checks a config
// file without starting anything.
func buildValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK: %s\n", configPath)
			fmt.Fprintf(out, "  Server:        %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Fprintf(out, "  Default model: %s\n", cfg.Agent.Model)
			if len(cfg.Agent.Overrides) > 0 {
				names := make([]string, 0, len(cfg.Agent.Overrides))
				for name := range cfg.Agent.Overrides {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintln(out, "  Model overrides:")
				for _, name := range names {
					fmt.Fprintf(out, "    %s: %s\n", name, cfg.Agent.Overrides[name])
				}
			}
			fmt.Fprintf(out, "  History:       %s\n", historyLabel(cfg))
			fmt.Fprintf(out, "  Home Assistant: %s\n", enabledLabel(cfg.HomeAssistant.Enabled))
			fmt.Fprintf(out, "  Crawl4AI:      %s\n", enabledLabel(cfg.Integrations.Crawl4AI.Enabled))
			fmt.Fprintf(out, "  Shell mode:    %s (%d allowed commands)\n",
				shellModeLabel(cfg), len(cfg.Tools.Shell.Allow))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "hearth %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

func historyLabel(cfg *config.Config) string {
	if cfg.History.Driver == "" {
		return "memory"
	}
	return cfg.History.Driver
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func shellModeLabel(cfg *config.Config) string {
	if cfg.Tools.Shell.Mode == "" {
		return "strict"
	}
	return cfg.Tools.Shell.Mode
}
