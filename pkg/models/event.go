package models

import "time"

// EventType tags the normalized event variants produced by the session
// runner and delivered to clients.
type EventType string

const (
	EventToolCall      EventType = "tool_call"
	EventAgentTransfer EventType = "agent_transfer"
	EventPlanner       EventType = "planner"
	EventModelResponse EventType = "model_response"
	EventOther         EventType = "other"
)

// Event is the normalized envelope shared by all event variants. Variant
// payloads live in Details under stable keys:
//
//	tool_call:       tool_name, input, output, error
//	agent_transfer:  from_agent, to_agent, status
//	planner:         plan, plan_step
//	model_response:  text, is_final, agent_name, model
type Event struct {
	Type      EventType      `json:"type"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details,omitempty"`
}

// IsFinal reports whether this is a model response that terminates its turn.
func (e Event) IsFinal() bool {
	if e.Type != EventModelResponse {
		return false
	}
	final, _ := e.Details["is_final"].(bool)
	return final
}

// Text returns the model response text, if any.
func (e Event) Text() string {
	text, _ := e.Details["text"].(string)
	return text
}

// SameIdentity reports whether two events are duplicates for buffer
// deduplication: same type, summary, and timestamp.
func (e Event) SameIdentity(other Event) bool {
	return e.Type == other.Type && e.Summary == other.Summary && e.Timestamp.Equal(other.Timestamp)
}
