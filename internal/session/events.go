// Package session owns the conversation lifecycle: the manager multiplexes
// sessions, each runner drives one turn loop against the agent tree,
// normalizes engine output into events, bounds payload sizes, and persists
// completed turns before acknowledging them.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hearthd/hearth/pkg/models"
)

// DefaultBufferCap bounds the per-session event buffer.
const DefaultBufferCap = 1000

// Buffer is the per-session event buffer. Appends deduplicate on event
// identity (type, summary, timestamp); the oldest events are dropped once
// the cap is reached. The buffer survives client reconnects so events can
// be replayed for resynchronization.
type Buffer struct {
	mu     sync.Mutex
	events []models.Event
	cap    int
}

// NewBuffer creates a buffer. A non-positive cap selects DefaultBufferCap.
func NewBuffer(cap int) *Buffer {
	if cap <= 0 {
		cap = DefaultBufferCap
	}
	return &Buffer{cap: cap}
}

// Append adds an event unless an identical one is already buffered.
// Returns false for dropped duplicates.
func (b *Buffer) Append(event models.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.events {
		if existing.SameIdentity(event) {
			return false
		}
	}
	b.events = append(b.events, event)
	if len(b.events) > b.cap {
		b.events = b.events[len(b.events)-b.cap:]
	}
	return true
}

// Events returns a copy of the buffered events in emission order.
func (b *Buffer) Events() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Event(nil), b.events...)
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Event categories used in the normalized envelope.
const (
	CategoryTool     = "tool"
	CategoryTransfer = "transfer"
	CategoryPlanner  = "planner"
	CategoryModel    = "model"
	CategoryError    = "error"
)

func newToolCallEvent(call models.ToolCall, now time.Time) models.Event {
	input := json.RawMessage(call.Input)
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return models.Event{
		Type:      models.EventToolCall,
		Category:  CategoryTool,
		Timestamp: now,
		Summary:   "tool_call: " + call.Name,
		Details: map[string]any{
			"tool_name": call.Name,
			"input":     input,
		},
	}
}

func newToolResultEvent(call models.ToolCall, content string, isError bool, now time.Time) models.Event {
	details := map[string]any{"tool_name": call.Name}
	if isError {
		details["error"] = content
	} else {
		details["output"] = content
	}
	return models.Event{
		Type:      models.EventToolCall,
		Category:  CategoryTool,
		Timestamp: now,
		Summary:   "tool_result: " + call.Name,
		Details:   details,
	}
}

func newTransferEvent(from, to, status string, now time.Time) models.Event {
	return models.Event{
		Type:      models.EventAgentTransfer,
		Category:  CategoryTransfer,
		Timestamp: now,
		Summary:   fmt.Sprintf("transfer %s: %s -> %s", status, from, to),
		Details: map[string]any{
			"from_agent": from,
			"to_agent":   to,
			"status":     status,
		},
	}
}

func newPlannerEvent(plan, step string, now time.Time) models.Event {
	details := map[string]any{}
	summary := "planner"
	if plan != "" {
		details["plan"] = plan
		summary = "planner: plan"
	}
	if step != "" {
		details["plan_step"] = step
		summary = "planner: step"
	}
	return models.Event{
		Type:      models.EventPlanner,
		Category:  CategoryPlanner,
		Timestamp: now,
		Summary:   summary,
		Details:   details,
	}
}

func newModelResponseEvent(text string, final bool, agentName, model string, now time.Time) models.Event {
	summary := "model_response"
	if final {
		summary = "model_response: final"
	}
	return models.Event{
		Type:      models.EventModelResponse,
		Category:  CategoryModel,
		Timestamp: now,
		Summary:   summary,
		Details: map[string]any{
			"text":       text,
			"is_final":   final,
			"agent_name": agentName,
			"model":      model,
		},
	}
}

func newErrorEvent(message string, now time.Time) models.Event {
	return models.Event{
		Type:      models.EventOther,
		Category:  CategoryError,
		Timestamp: now,
		Summary:   "error: " + message,
		Details:   map[string]any{"error": message},
	}
}
