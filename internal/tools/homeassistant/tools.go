// Package homeassistant exposes the Home Assistant state cache and service
// bus to agents. Control tools act only on entity ids already known to the
// cache; fuzzy references go through search_entities first.
package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/hass"
)

// StateSource is the cache surface the tools read.
type StateSource interface {
	Search(query, domain string) []hass.SearchResult
	GetState(entityID string) (hass.Entity, bool)
	RegistryEntry(entityID string) (hass.RegistryEntry, bool)
}

// ServiceCaller executes Home Assistant service calls.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, data map[string]any) (json.RawMessage, error)
}

const defaultSearchLimit = 10

// resolved reports whether the cache knows the entity, either as a live
// state or as a registry entry.
func resolved(source StateSource, entityID string) bool {
	if _, ok := source.GetState(entityID); ok {
		return true
	}
	_, ok := source.RegistryEntry(entityID)
	return ok
}

func unresolvedResult(entityID string) *agent.ToolResult {
	return agent.ErrorResult(fmt.Sprintf("entity %q is not known; use search_entities to resolve the entity id first", entityID))
}

// SearchTool resolves fuzzy entity references against the cache.
type SearchTool struct {
	source StateSource
	limit  int
}

// NewSearchTool creates the search_entities tool.
func NewSearchTool(source StateSource) *SearchTool {
	return &SearchTool{source: source, limit: defaultSearchLimit}
}

// Name returns the tool name.
func (t *SearchTool) Name() string { return "search_entities" }

// Description returns the tool description.
func (t *SearchTool) Description() string {
	return "Search Home Assistant entities by name, area, or device. Returns scored matches with canonical entity ids."
}

// Schema returns the JSON schema for the tool parameters.
func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": { "type": "string", "description": "Free-text entity reference (e.g., \"basement light\")." },
    "domain": { "type": "string", "description": "Optional domain filter (e.g., light, switch)." },
    "limit": { "type": "integer", "description": "Max results to return (default 10).", "minimum": 1 }
  },
  "required": ["query"]
}`)
}

// Execute searches the cache. An empty query with a domain filter
// enumerates the domain.
func (t *SearchTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query  string `json:"query"`
		Domain string `json:"domain"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Query) == "" && strings.TrimSpace(input.Domain) == "" {
		return agent.ErrorResult("query or domain is required"), nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = t.limit
	}

	matches := t.source.Search(input.Query, input.Domain)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return agent.JSONResult(map[string]any{
		"results": matches,
		"count":   len(matches),
	}), nil
}

// GetStateTool reads a single entity state from the cache.
type GetStateTool struct {
	source StateSource
}

// NewGetStateTool creates the get_entity_state tool.
func NewGetStateTool(source StateSource) *GetStateTool {
	return &GetStateTool{source: source}
}

// Name returns the tool name.
func (t *GetStateTool) Name() string { return "get_entity_state" }

// Description returns the tool description.
func (t *GetStateTool) Description() string {
	return "Get the current state and attributes for a known entity_id."
}

// Schema returns the JSON schema for the tool parameters.
func (t *GetStateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "entity_id": { "type": "string", "description": "Canonical entity id (e.g., light.kitchen)." }
  },
  "required": ["entity_id"]
}`)
}

// Execute reads the cache; it never calls out to Home Assistant.
func (t *GetStateTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if err := hass.ValidateEntityID(input.EntityID); err != nil {
		return agent.ErrorResult(err.Error()), nil
	}

	entity, ok := t.source.GetState(input.EntityID)
	if !ok {
		if _, registered := t.source.RegistryEntry(input.EntityID); registered {
			return agent.ErrorResult(fmt.Sprintf("entity %q is registered but has no state yet", input.EntityID)), nil
		}
		return unresolvedResult(input.EntityID), nil
	}
	return agent.JSONResult(entity), nil
}

// TurnTool flips an entity on or off through the homeassistant domain
// services, which accept any entity domain.
type TurnTool struct {
	source  StateSource
	caller  ServiceCaller
	service string
}

// NewTurnOnTool creates the turn_on tool.
func NewTurnOnTool(source StateSource, caller ServiceCaller) *TurnTool {
	return &TurnTool{source: source, caller: caller, service: "turn_on"}
}

// NewTurnOffTool creates the turn_off tool.
func NewTurnOffTool(source StateSource, caller ServiceCaller) *TurnTool {
	return &TurnTool{source: source, caller: caller, service: "turn_off"}
}

// Name returns the tool name.
func (t *TurnTool) Name() string { return t.service }

// Description returns the tool description.
func (t *TurnTool) Description() string {
	if t.service == "turn_on" {
		return "Turn on a known entity by canonical entity_id."
	}
	return "Turn off a known entity by canonical entity_id."
}

// Schema returns the JSON schema for the tool parameters.
func (t *TurnTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "entity_id": { "type": "string", "description": "Canonical entity id resolved via search_entities." }
  },
  "required": ["entity_id"]
}`)
}

// Execute refuses unresolved entity ids before touching the service bus.
func (t *TurnTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if err := hass.ValidateEntityID(input.EntityID); err != nil {
		return agent.ErrorResult(err.Error()), nil
	}
	if !resolved(t.source, input.EntityID) {
		return unresolvedResult(input.EntityID), nil
	}

	payload, err := t.caller.CallService(ctx, "homeassistant", t.service, map[string]any{
		"entity_id": input.EntityID,
	})
	if err != nil {
		return agent.ErrorResult(err.Error()), nil
	}
	return agent.JSONResult(map[string]any{
		"entity_id": input.EntityID,
		"service":   "homeassistant." + t.service,
		"result":    json.RawMessage(payload),
	}), nil
}

// CallServiceTool calls an arbitrary Home Assistant service.
type CallServiceTool struct {
	source StateSource
	caller ServiceCaller
}

// NewCallServiceTool creates the call_service tool.
func NewCallServiceTool(source StateSource, caller ServiceCaller) *CallServiceTool {
	return &CallServiceTool{source: source, caller: caller}
}

// Name returns the tool name.
func (t *CallServiceTool) Name() string { return "call_service" }

// Description returns the tool description.
func (t *CallServiceTool) Description() string {
	return "Call a Home Assistant service (domain + service) with optional service data. Entity ids in the data must already be resolved."
}

// Schema returns the JSON schema for the tool parameters.
func (t *CallServiceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "domain": { "type": "string", "description": "Service domain (e.g., light, climate)." },
    "service": { "type": "string", "description": "Service name (e.g., set_temperature)." },
    "service_data": {
      "type": "object",
      "description": "Service data payload (e.g., {\"entity_id\":\"light.kitchen\",\"brightness\":128}).",
      "additionalProperties": true
    }
  },
  "required": ["domain", "service"]
}`)
}

// Execute validates any entity_id in the service data against the cache
// before dispatching the call.
func (t *CallServiceTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Domain      string         `json:"domain"`
		Service     string         `json:"service"`
		ServiceData map[string]any `json:"service_data"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Domain) == "" || strings.TrimSpace(input.Service) == "" {
		return agent.ErrorResult("domain and service are required"), nil
	}

	if raw, ok := input.ServiceData["entity_id"]; ok {
		for _, entityID := range entityIDs(raw) {
			if err := hass.ValidateEntityID(entityID); err != nil {
				return agent.ErrorResult(err.Error()), nil
			}
			if !resolved(t.source, entityID) {
				return unresolvedResult(entityID), nil
			}
		}
	}

	payload, err := t.caller.CallService(ctx, input.Domain, input.Service, input.ServiceData)
	if err != nil {
		return agent.ErrorResult(err.Error()), nil
	}
	return agent.JSONResult(map[string]any{
		"service": input.Domain + "." + input.Service,
		"result":  json.RawMessage(payload),
	}), nil
}

// entityIDs normalizes the entity_id service data field, which Home
// Assistant accepts as a string or a list of strings.
func entityIDs(raw any) []string {
	switch value := raw.(type) {
	case string:
		return []string{value}
	case []any:
		ids := make([]string, 0, len(value))
		for _, item := range value {
			if id, ok := item.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids
	default:
		return nil
	}
}
