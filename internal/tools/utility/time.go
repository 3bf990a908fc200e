// Package utility holds small self-contained tools that need no external
// services.
package utility

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthd/hearth/internal/agent"
)

// TimeTool reports the current time, optionally in a named timezone.
type TimeTool struct {
	now func() time.Time
}

// NewTimeTool creates the get_current_time tool.
func NewTimeTool() *TimeTool {
	return &TimeTool{now: time.Now}
}

// Name returns the tool name.
func (t *TimeTool) Name() string {
	return "get_current_time"
}

// Description returns the tool description.
func (t *TimeTool) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone."
}

// Schema returns the JSON schema for the tool parameters.
func (t *TimeTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, e.g. Europe/Berlin. Defaults to the server timezone.",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute returns the current time.
func (t *TimeTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Timezone string `json:"timezone"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}

	now := t.now()
	location := now.Location()
	if input.Timezone != "" {
		loc, err := time.LoadLocation(input.Timezone)
		if err != nil {
			return agent.ErrorResult(fmt.Sprintf("unknown timezone %q", input.Timezone)), nil
		}
		location = loc
	}
	local := now.In(location)

	return agent.JSONResult(map[string]any{
		"time":     local.Format(time.RFC3339),
		"timezone": location.String(),
		"weekday":  local.Weekday().String(),
		"unix":     local.Unix(),
	}), nil
}
