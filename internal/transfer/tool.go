package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hearthd/hearth/internal/agent"
)

// ToolName is the name of the synthetic transfer tool injected into every
// agent's tool list.
const ToolName = "transfer_to_agent"

// Tool is the per-agent transfer tool. It is synthesized on demand when the
// runner asks for an agent's active tool set, so the target enumeration in
// its schema always reflects the current rules.
type Tool struct {
	controller *Controller
	source     string
}

// ToolFor returns the synthetic transfer tool for the named agent.
func (c *Controller) ToolFor(source string) *Tool {
	return &Tool{controller: c, source: source}
}

// Name returns the tool name.
func (t *Tool) Name() string { return ToolName }

// Description lists the targets the source agent may transfer to.
func (t *Tool) Description() string {
	targets := t.controller.Allowed(t.source)
	if len(targets) == 0 {
		return "Transfer the conversation to another agent. No transfer targets are currently permitted."
	}
	return fmt.Sprintf(
		"Transfer the conversation to another agent when the request is outside your expertise. Permitted targets: %s.",
		strings.Join(targets, ", "))
}

// Schema restricts agent_name to the enumeration of permitted targets.
func (t *Tool) Schema() json.RawMessage {
	targets := t.controller.Allowed(t.source)
	enum := make([]any, 0, len(targets))
	for _, target := range targets {
		enum = append(enum, target)
	}
	properties := map[string]any{
		"agent_name": map[string]any{
			"type":        "string",
			"description": "Name of the agent to transfer to",
		},
	}
	if len(enum) > 0 {
		properties["agent_name"].(map[string]any)["enum"] = enum
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   []string{"agent_name"},
	}
	data, _ := json.Marshal(schema)
	return data
}

// Input is the transfer tool's parameter shape.
type Input struct {
	AgentName string `json:"agent_name"`
}

// Request is the serialized outcome of a transfer tool call, parsed by the
// runner to switch the active agent.
type Request struct {
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// Execute validates the requested target against the controller's rules.
// The result encodes either a granted or a denied request; the runner
// performs the actual switch so denial never changes the active agent.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input Input
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult("invalid transfer parameters: " + err.Error()), nil
	}
	target := strings.TrimSpace(input.AgentName)
	if target == "" {
		return agent.ErrorResult("agent_name is required"), nil
	}

	request := Request{FromAgent: t.source, ToAgent: target, Status: "granted"}
	if _, err := t.controller.Transfer(t.source, target); err != nil {
		request.Status = "denied"
		request.Reason = err.Error()
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return agent.ErrorResult("serialize transfer request: " + err.Error()), nil
	}
	return &agent.ToolResult{Content: string(encoded), IsError: request.Status == "denied"}, nil
}

// IsTransferCall reports whether a tool call targets the transfer tool.
func IsTransferCall(name string) bool { return name == ToolName }

// ParseRequest decodes a transfer tool result.
func ParseRequest(result *agent.ToolResult) (*Request, error) {
	if result == nil || result.Content == "" {
		return nil, fmt.Errorf("empty transfer result")
	}
	var request Request
	if err := json.Unmarshal([]byte(result.Content), &request); err != nil {
		return nil, fmt.Errorf("parse transfer result: %w", err)
	}
	if request.ToAgent == "" {
		return nil, fmt.Errorf("transfer result missing target")
	}
	return &request, nil
}
