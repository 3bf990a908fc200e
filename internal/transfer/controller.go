// Package transfer is the single source of truth for which agents may hand
// the conversation to which others. Agents never hold references to each
// other; the controller resolves targets by name and synthesizes the
// transfer tool each agent exposes.
package transfer

import (
	"errors"
	"sort"
	"sync"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/fault"
)

// DefaultMaxDepth bounds transfers within one turn.
const DefaultMaxDepth = 8

var (
	// ErrDuplicateAgent means a different agent already owns the name.
	ErrDuplicateAgent = errors.New("duplicate agent name")

	// ErrUnknownAgent means a referenced agent is not registered.
	ErrUnknownAgent = errors.New("unknown agent")
)

// Controller owns the agent graph and its transfer rules. Registration and
// edge mutation happen at startup; afterwards the rule map is read-only and
// consulted on every transfer attempt.
type Controller struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
	rules  map[string]map[string]bool
}

// NewController creates an empty controller.
func NewController() *Controller {
	return &Controller{
		agents: make(map[string]*agent.Agent),
		rules:  make(map[string]map[string]bool),
	}
}

// Register adds an agent and records its allowed transfer edges.
// Registration is idempotent for the same agent; a different agent under an
// existing name fails with ErrDuplicateAgent. Edges named in the agent's
// AllowedTransfers are recorded even if the target registers later; they
// are validated by Resolve at startup.
func (c *Controller) Register(a *agent.Agent) error {
	if a == nil {
		return fault.New(fault.InvalidInput, "agent is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.agents[a.Name()]; ok {
		if existing == a {
			return nil
		}
		return fault.Wrap(fault.InvalidInput, ErrDuplicateAgent, "agent %q already registered", a.Name())
	}
	c.agents[a.Name()] = a
	edges := c.rules[a.Name()]
	if edges == nil {
		edges = make(map[string]bool)
		c.rules[a.Name()] = edges
	}
	for _, target := range a.AllowedTransfers() {
		if target == a.Name() {
			return fault.New(fault.InvalidInput, "agent %q may not transfer to itself", a.Name())
		}
		edges[target] = true
	}
	return nil
}

// RegisterPair registers a parent/specialist edge. When bidirectional, the
// reverse edge is recorded so the specialist can hand control back.
func (c *Controller) RegisterPair(parent, specialist string, bidirectional bool) error {
	if err := c.AllowTransfer(parent, specialist); err != nil {
		return err
	}
	if bidirectional {
		return c.AllowTransfer(specialist, parent)
	}
	return nil
}

// AllowTransfer adds a directed edge. Both ends must be registered;
// reflexive edges are forbidden.
func (c *Controller) AllowTransfer(source, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.agents[source]; !ok {
		return fault.Wrap(fault.UnknownResource, ErrUnknownAgent, "unknown source agent %q", source)
	}
	if _, ok := c.agents[target]; !ok {
		return fault.Wrap(fault.UnknownResource, ErrUnknownAgent, "unknown target agent %q", target)
	}
	if source == target {
		return fault.New(fault.InvalidInput, "agent %q may not transfer to itself", source)
	}
	if c.rules[source] == nil {
		c.rules[source] = make(map[string]bool)
	}
	c.rules[source][target] = true
	return nil
}

// Resolve verifies that every recorded edge points at a registered agent.
// Called once after startup registration completes.
func (c *Controller) Resolve() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for source, edges := range c.rules {
		for target := range edges {
			if _, ok := c.agents[target]; !ok {
				return fault.Wrap(fault.UnknownResource, ErrUnknownAgent,
					"agent %q allows transfer to unregistered agent %q", source, target)
			}
		}
	}
	return nil
}

// SetModel swaps the named agent for a copy running a different model.
// Config hot reload is the only caller; transfer rules are untouched.
func (c *Controller) SetModel(name, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.agents[name]
	if !ok {
		return fault.Wrap(fault.UnknownResource, ErrUnknownAgent, "unknown agent %q", name)
	}
	if a.Model() != model {
		c.agents[name] = a.WithModel(model)
	}
	return nil
}

// Get returns a registered agent by name.
func (c *Controller) Get(name string) (*agent.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[name]
	return a, ok
}

// Agents returns all registered agent names, sorted.
func (c *Controller) Agents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.agents))
	for name := range c.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Allowed returns the sorted transfer targets permitted to source.
func (c *Controller) Allowed(source string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	edges := c.rules[source]
	targets := make([]string, 0, len(edges))
	for target := range edges {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// Transfer yields the target agent iff the edge source→target is
// permitted. Denials are non-fatal for the turn: the runner surfaces them
// as events and leaves the active agent unchanged.
func (c *Controller) Transfer(source, target string) (*agent.Agent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.agents[source]; !ok {
		return nil, fault.Wrap(fault.UnknownResource, ErrUnknownAgent, "unknown source agent %q", source)
	}
	targetAgent, ok := c.agents[target]
	if !ok {
		return nil, fault.Wrap(fault.UnknownResource, ErrUnknownAgent, "unknown target agent %q", target)
	}
	if !c.rules[source][target] {
		return nil, fault.New(fault.TransferDenied, "agent %q may not transfer to %q", source, target)
	}
	return targetAgent, nil
}
