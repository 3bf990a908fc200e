// Package todo keeps a per-session todo list in memory. Items are scoped
// by the session id carried in the execution context and vanish with the
// process.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/observability"
)

// Item is one todo entry.
type Item struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds todo lists for all sessions.
type Store struct {
	mu     sync.Mutex
	lists  map[string][]Item
	nextID map[string]int
}

// NewStore creates an empty todo store.
func NewStore() *Store {
	return &Store{
		lists:  make(map[string][]Item),
		nextID: make(map[string]int),
	}
}

// Add appends an item to the session's list and returns it.
func (s *Store) Add(sessionID, text string) Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID[sessionID]++
	item := Item{
		ID:        s.nextID[sessionID],
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	s.lists[sessionID] = append(s.lists[sessionID], item)
	return item
}

// List returns a copy of the session's items in insertion order.
func (s *Store) List(sessionID string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.lists[sessionID]...)
}

// Complete marks the item done. It reports whether the item exists.
func (s *Store) Complete(sessionID string, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.lists[sessionID] {
		if item.ID == id {
			s.lists[sessionID][i].Done = true
			return true
		}
	}
	return false
}

// Remove deletes the item. It reports whether the item existed.
func (s *Store) Remove(sessionID string, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[sessionID]
	for i, item := range list {
		if item.ID == id {
			s.lists[sessionID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Tool exposes the todo store to agents.
type Tool struct {
	store *Store
}

// New creates the todo tool backed by the given store.
func New(store *Store) *Tool {
	return &Tool{store: store}
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return "manage_todos"
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Manage the session todo list: add, list, complete, or remove items."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"add", "list", "complete", "remove"},
				"description": "Operation to perform.",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Item text (required for add).",
			},
			"id": map[string]any{
				"type":        "integer",
				"description": "Item id (required for complete and remove).",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute dispatches on the action field.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	sessionID := observability.GetSessionID(ctx)
	if sessionID == "" {
		return agent.ErrorResult("no session in scope"), nil
	}

	var input struct {
		Action string `json:"action"`
		Text   string `json:"text"`
		ID     int    `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	switch input.Action {
	case "add":
		text := strings.TrimSpace(input.Text)
		if text == "" {
			return agent.ErrorResult("text is required for add"), nil
		}
		item := t.store.Add(sessionID, text)
		return agent.JSONResult(map[string]any{"added": item}), nil
	case "list":
		items := t.store.List(sessionID)
		return agent.JSONResult(map[string]any{"items": items, "count": len(items)}), nil
	case "complete":
		if !t.store.Complete(sessionID, input.ID) {
			return agent.ErrorResult(fmt.Sprintf("no todo item with id %d", input.ID)), nil
		}
		return agent.JSONResult(map[string]any{"completed": input.ID}), nil
	case "remove":
		if !t.store.Remove(sessionID, input.ID) {
			return agent.ErrorResult(fmt.Sprintf("no todo item with id %d", input.ID)), nil
		}
		return agent.JSONResult(map[string]any{"removed": input.ID}), nil
	default:
		return agent.ErrorResult(fmt.Sprintf("unknown action %q", input.Action)), nil
	}
}
