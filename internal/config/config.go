// Package config loads and validates the layered Hearth configuration.
//
// Configuration is read from a YAML (or JSON5) file, merged with any
// $include'd fragments, expanded against the process environment, and then
// overridden by HEARTH_* environment variables. The resulting Config is
// read-only for the lifetime of the process; hot reload only re-applies
// per-agent model overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration for the Hearth runtime.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Agent         AgentConfig         `yaml:"agent"`
	VectorDB      VectorDBConfig      `yaml:"vector_db"`
	Integrations  IntegrationsConfig  `yaml:"integrations"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	MCPServers    []MCPServerConfig   `yaml:"mcp_servers"`
	Tools         ToolsConfig         `yaml:"tools"`
	History       HistoryConfig       `yaml:"history"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// AgentConfig selects models and per-agent overrides.
type AgentConfig struct {
	// Model is the default model identifier used by agents without an override.
	Model string `yaml:"model"`
	// Provider selects the model backend (openai-compatible endpoints).
	Provider ProviderConfig `yaml:"provider"`
	// Overrides maps agent name to a model identifier.
	Overrides map[string]string `yaml:"overrides"`
	// UseVertex routes Gemini-family models through Vertex AI endpoints.
	UseVertex     bool   `yaml:"use_vertex"`
	VertexProject string `yaml:"vertex_project"`
	VertexRegion  string `yaml:"vertex_region"`
	// TransferDepth bounds agent transfers within one turn. Default 8.
	TransferDepth int `yaml:"transfer_depth"`
}

// ProviderConfig configures the model provider endpoint.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VectorDBConfig points at the external vector store used by the crawl tool.
type VectorDBConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// IntegrationsConfig groups optional external integrations.
type IntegrationsConfig struct {
	Crawl4AI Crawl4AIConfig `yaml:"crawl4ai"`
}

// Crawl4AIConfig configures the web-crawl service client.
type Crawl4AIConfig struct {
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	Enabled  bool   `yaml:"enabled"`
}

// HomeAssistantConfig configures the Home Assistant WebSocket connection.
type HomeAssistantConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	MCPSSEURL string `yaml:"mcp_sse_url"`
	Enabled   bool   `yaml:"enabled"`
}

// MCPServerConfig describes one MCP server entry.
type MCPServerConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
	URL       string `yaml:"url"`
	AuthToken string `yaml:"auth_token"`
}

// ToolsConfig carries tool toggles and limits.
type ToolsConfig struct {
	// Timeout is the per-tool execution deadline. Default 60s.
	Timeout time.Duration `yaml:"timeout"`
	Shell   ShellConfig   `yaml:"shell"`
	Files   FilesConfig   `yaml:"files"`
	Search  SearchConfig  `yaml:"search"`
}

// ShellConfig selects the shell tool security mode.
type ShellConfig struct {
	// Mode is "strict" (allow-list) or "permissive". Default strict.
	Mode string `yaml:"mode"`
	// Allow lists permitted executables in strict mode.
	Allow []string `yaml:"allow"`
}

// FilesConfig bounds the filesystem toolset.
type FilesConfig struct {
	Root string `yaml:"root"`
}

// SearchConfig configures the web-search toolset.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// HistoryConfig selects the chat-history store backend.
type HistoryConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Default returns a Config populated with runtime defaults.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8090},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Agent: AgentConfig{
			Model:         "gpt-4o-mini",
			TransferDepth: 8,
		},
		Tools: ToolsConfig{
			Timeout: 60 * time.Second,
			Shell:   ShellConfig{Mode: "strict"},
		},
		History: HistoryConfig{Driver: "memory"},
	}
}

// ModelFor resolves the model identifier for an agent name, honoring
// per-agent overrides.
func (c *Config) ModelFor(agentName string) string {
	if c == nil {
		return ""
	}
	if model, ok := c.Agent.Overrides[agentName]; ok && strings.TrimSpace(model) != "" {
		return model
	}
	return c.Agent.Model
}

// Validate checks cross-field constraints that cannot be expressed in YAML.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch strings.ToLower(c.Tools.Shell.Mode) {
	case "", "strict", "permissive":
	default:
		return fmt.Errorf("tools.shell.mode must be strict or permissive, got %q", c.Tools.Shell.Mode)
	}
	if c.HomeAssistant.Enabled {
		if strings.TrimSpace(c.HomeAssistant.URL) == "" {
			return fmt.Errorf("home_assistant.url is required when enabled")
		}
		if strings.TrimSpace(c.HomeAssistant.Token) == "" {
			return fmt.Errorf("home_assistant.token is required when enabled")
		}
	}
	switch strings.ToLower(c.History.Driver) {
	case "", "memory":
	case "postgres":
		if strings.TrimSpace(c.History.DSN) == "" {
			return fmt.Errorf("history.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("history.driver must be memory or postgres, got %q", c.History.Driver)
	}
	if c.Agent.TransferDepth < 0 {
		return fmt.Errorf("agent.transfer_depth must not be negative")
	}
	seen := map[string]bool{}
	for _, srv := range c.MCPServers {
		if strings.TrimSpace(srv.ID) == "" {
			return fmt.Errorf("mcp_servers entries require an id")
		}
		if seen[srv.ID] {
			return fmt.Errorf("duplicate mcp server id %q", srv.ID)
		}
		seen[srv.ID] = true
	}
	return nil
}
