package config

import (
	"strconv"
	"strings"
)

// Environment overrides take precedence over file values. Only scalar
// settings that operators commonly override at deploy time are mapped.
const envPrefix = "HEARTH_"

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				*dst = parsed
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				*dst = parsed
			}
		}
	}

	setString("HOST", &cfg.Server.Host)
	setInt("PORT", &cfg.Server.Port)
	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)

	setString("MODEL", &cfg.Agent.Model)
	setString("PROVIDER_API_KEY", &cfg.Agent.Provider.APIKey)
	setString("PROVIDER_BASE_URL", &cfg.Agent.Provider.BaseURL)
	setInt("TRANSFER_DEPTH", &cfg.Agent.TransferDepth)

	setString("VECTOR_DB_URL", &cfg.VectorDB.URL)
	setString("VECTOR_DB_API_KEY", &cfg.VectorDB.APIKey)
	setString("VECTOR_DB_COLLECTION", &cfg.VectorDB.Collection)

	setString("CRAWL4AI_API_URL", &cfg.Integrations.Crawl4AI.APIURL)
	setString("CRAWL4AI_API_TOKEN", &cfg.Integrations.Crawl4AI.APIToken)
	setBool("CRAWL4AI_ENABLED", &cfg.Integrations.Crawl4AI.Enabled)

	setString("HA_URL", &cfg.HomeAssistant.URL)
	setString("HA_TOKEN", &cfg.HomeAssistant.Token)
	setString("HA_MCP_SSE_URL", &cfg.HomeAssistant.MCPSSEURL)
	setBool("HA_ENABLED", &cfg.HomeAssistant.Enabled)

	setString("SHELL_MODE", &cfg.Tools.Shell.Mode)
	setString("FILES_ROOT", &cfg.Tools.Files.Root)
	setString("SEARCH_ENDPOINT", &cfg.Tools.Search.Endpoint)
	setString("SEARCH_API_KEY", &cfg.Tools.Search.APIKey)

	setString("HISTORY_DRIVER", &cfg.History.Driver)
	setString("HISTORY_DSN", &cfg.History.DSN)
}
