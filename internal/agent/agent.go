package agent

import (
	"regexp"
	"strings"

	"github.com/hearthd/hearth/internal/fault"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Config declares an agent before construction.
type Config struct {
	// Name is a globally unique lowercase identifier.
	Name string
	// Model is the model identifier used when this agent is active.
	Model string
	// Instruction is the system prompt for this agent.
	Instruction string
	// Tools is the ordered tool list; names must be unique within the agent.
	Tools []Tool
	// SubAgents lists child agent names, in order.
	SubAgents []string
	// AllowedTransfers lists agent names this agent may transfer to.
	AllowedTransfers []string
}

// Agent is an immutable, named actor in the hierarchy. Agents reference
// each other by name only; resolution happens through the transfer
// controller, never through direct handles.
type Agent struct {
	name             string
	model            string
	instruction      string
	tools            []Tool
	subAgents        []string
	allowedTransfers []string
}

// New validates cfg and constructs an immutable Agent.
func New(cfg Config) (*Agent, error) {
	name := strings.TrimSpace(cfg.Name)
	if !namePattern.MatchString(name) {
		return nil, fault.New(fault.InvalidInput, "agent name %q must be a lowercase identifier", cfg.Name)
	}
	seen := make(map[string]bool, len(cfg.Tools))
	for _, tool := range cfg.Tools {
		if tool == nil {
			return nil, fault.New(fault.InvalidInput, "agent %q has a nil tool", name)
		}
		if seen[tool.Name()] {
			return nil, fault.New(fault.InvalidInput, "agent %q has duplicate tool %q", name, tool.Name())
		}
		seen[tool.Name()] = true
	}
	return &Agent{
		name:             name,
		model:            cfg.Model,
		instruction:      cfg.Instruction,
		tools:            append([]Tool(nil), cfg.Tools...),
		subAgents:        append([]string(nil), cfg.SubAgents...),
		allowedTransfers: append([]string(nil), cfg.AllowedTransfers...),
	}, nil
}

// WithModel returns a copy of the agent running a different model. Tools,
// sub-agents, and transfer edges are shared unchanged.
func (a *Agent) WithModel(model string) *Agent {
	clone := *a
	clone.model = model
	return &clone
}

// Name returns the agent's unique identifier.
func (a *Agent) Name() string { return a.name }

// Model returns the agent's model identifier.
func (a *Agent) Model() string { return a.model }

// Instruction returns the agent's system prompt.
func (a *Agent) Instruction() string { return a.instruction }

// Tools returns a copy of the agent's ordered tool list.
func (a *Agent) Tools() []Tool {
	return append([]Tool(nil), a.tools...)
}

// SubAgents returns a copy of the agent's child names.
func (a *Agent) SubAgents() []string {
	return append([]string(nil), a.subAgents...)
}

// AllowedTransfers returns a copy of the permitted transfer targets.
func (a *Agent) AllowedTransfers() []string {
	return append([]string(nil), a.allowedTransfers...)
}
