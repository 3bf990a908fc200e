// Package memorynotes keeps per-session key/value notes in memory so an
// agent can stash small facts across turns without a database.
package memorynotes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/observability"
)

// Note is one saved fact.
type Note struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store holds notes for all sessions.
type Store struct {
	mu    sync.RWMutex
	notes map[string]map[string]Note
}

// NewStore creates an empty note store.
func NewStore() *Store {
	return &Store{notes: make(map[string]map[string]Note)}
}

// Save upserts a note for the session.
func (s *Store) Save(sessionID, key, value string) Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notes[sessionID] == nil {
		s.notes[sessionID] = make(map[string]Note)
	}
	note := Note{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	s.notes[sessionID][key] = note
	return note
}

// Get returns the note for key, if saved.
func (s *Store) Get(sessionID, key string) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[sessionID][key]
	return note, ok
}

// List returns the session's notes sorted by key.
func (s *Store) List(sessionID string) []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listed := make([]Note, 0, len(s.notes[sessionID]))
	for _, note := range s.notes[sessionID] {
		listed = append(listed, note)
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Key < listed[j].Key })
	return listed
}

// Delete removes a note. It reports whether the note existed.
func (s *Store) Delete(sessionID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[sessionID][key]; !ok {
		return false
	}
	delete(s.notes[sessionID], key)
	return true
}

// Tool exposes the note store to agents.
type Tool struct {
	store *Store
}

// New creates the memory notes tool backed by the given store.
func New(store *Store) *Tool {
	return &Tool{store: store}
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return "memory_notes"
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Save, get, list, or delete short session-scoped notes by key."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"save", "get", "list", "delete"},
				"description": "Operation to perform.",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Note key (required for save, get, delete).",
			},
			"value": map[string]any{
				"type":        "string",
				"description": "Note value (required for save).",
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
		Key    string `json:"key"`
		Value  string `json:"value"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	key := strings.TrimSpace(input.Key)

	switch input.Action {
	case "save":
		if key == "" {
			return agent.ErrorResult("key is required for save"), nil
		}
		note := t.store.Save(sessionID, key, input.Value)
		return agent.JSONResult(map[string]any{"saved": note}), nil
	case "get":
		note, ok := t.store.Get(sessionID, key)
		if !ok {
			return agent.ErrorResult(fmt.Sprintf("no note with key %q", key)), nil
		}
		return agent.JSONResult(note), nil
	case "list":
		notes := t.store.List(sessionID)
		return agent.JSONResult(map[string]any{"notes": notes, "count": len(notes)}), nil
	case "delete":
		if !t.store.Delete(sessionID, key) {
			return agent.ErrorResult(fmt.Sprintf("no note with key %q", key)), nil
		}
		return agent.JSONResult(map[string]any{"deleted": key}), nil
	default:
		return agent.ErrorResult(fmt.Sprintf("unknown action %q", input.Action)), nil
	}
}
