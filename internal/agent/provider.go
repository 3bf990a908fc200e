package agent

import (
	"context"

	"github.com/hearthd/hearth/pkg/models"
)

// Provider is the model backend boundary. Implementations translate the
// unified request shape into a concrete API and stream chunks back.
//
// Implementations must be safe for concurrent use; the runner issues one
// Complete call per active turn but many turns run in parallel.
type Provider interface {
	// Name returns the stable lowercase provider identifier.
	Name() string

	// Complete sends a request and returns a stream of response chunks.
	// The channel is closed after the final chunk (Done or Error set).
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// CompletionRequest carries one model invocation.
type CompletionRequest struct {
	// Model is the model identifier; the active agent's selection.
	Model string `json:"model"`

	// System is the active agent's instruction.
	System string `json:"system,omitempty"`

	// Messages is the conversation so far, chronological.
	Messages []CompletionMessage `json:"messages"`

	// Tools are the active agent's tools, including the synthetic
	// transfer tool.
	Tools []Descriptor `json:"tools,omitempty"`

	// MaxTokens caps the response length; 0 selects the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionMessage is one message in the conversation.
// Role is "user", "assistant", or "tool".
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk is one element of a streamed model response. Exactly one
// of the payload fields is meaningful per chunk; Done marks the end of the
// stream.
type CompletionChunk struct {
	// Text is a partial response text delta.
	Text string `json:"text,omitempty"`

	// ToolCall is a complete tool invocation request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Plan and PlanStep surface planner output from reasoning models.
	Plan     string `json:"plan,omitempty"`
	PlanStep string `json:"plan_step,omitempty"`

	// Done is true on the final chunk of a successful stream.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`
}
