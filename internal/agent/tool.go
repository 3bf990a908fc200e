// Package agent defines the agent model: immutable agent definitions, the
// Tool interface, the validating tool registry, and the provider boundary
// used by the session runner to drive models.
package agent

import (
	"context"
	"encoding/json"
	"strings"
)

// Tool is an executable capability exposed to agents.
//
// Implementations must be re-entrant: the registry may execute the same
// tool concurrently for different sessions. Blocking work must honor ctx
// cancellation; the registry enforces a per-tool deadline around Execute.
type Tool interface {
	// Name returns the tool name used for model function calling.
	// Must be a valid function name (alphanumeric, underscores).
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's input. The registry
	// validates inputs against it before Execute is called.
	Schema() json.RawMessage

	// Execute runs the tool with schema-valid parameters.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the outcome of a tool execution. Failures are communicated
// with IsError=true so the model can handle them; Go errors from Execute
// are reserved for infrastructure failures.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Descriptor is the serializable description of a tool, exposed by the
// /api/tools endpoint and embedded in provider requests.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Describe builds the descriptor for a tool.
func Describe(t Tool) Descriptor {
	return Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}

// ErrorResult builds an error ToolResult with a JSON error body.
func ErrorResult(message string) *ToolResult {
	encoded, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &ToolResult{Content: message, IsError: true}
	}
	return &ToolResult{Content: string(encoded), IsError: true}
}

// JSONResult builds a ToolResult with an indented JSON body.
func JSONResult(payload any) *ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ErrorResult("encode result: " + err.Error())
	}
	return &ToolResult{Content: string(encoded)}
}

// TextResult builds a plain text ToolResult.
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: strings.TrimSpace(text)}
}
