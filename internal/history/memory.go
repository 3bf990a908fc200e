package history

import (
	"context"
	"sort"
	"sync"

	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/pkg/models"
)

// MemoryStore keeps history in process memory. It is the default driver
// for development and tests; everything is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.SessionMeta
	turns    map[string][]models.Turn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.SessionMeta),
		turns:    make(map[string][]models.Turn),
	}
}

// SaveSession inserts or updates session metadata.
func (s *MemoryStore) SaveSession(_ context.Context, meta models.SessionMeta) error {
	if meta.ID == "" {
		return fault.New(fault.InvalidInput, "session id is required")
	}
	s.mu.Lock()
	s.sessions[meta.ID] = meta
	s.mu.Unlock()
	return nil
}

// Sessions lists sessions for a user and app, newest first.
func (s *MemoryStore) Sessions(_ context.Context, userID, appName string) ([]models.SessionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SessionMeta
	for _, meta := range s.sessions {
		if meta.UserID == userID && meta.AppName == appName {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RenameSession updates a session's display name.
func (s *MemoryStore) RenameSession(_ context.Context, sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.sessions[sessionID]
	if !ok {
		return fault.New(fault.UnknownResource, "unknown session %q", sessionID)
	}
	meta.Name = name
	s.sessions[sessionID] = meta
	return nil
}

// DeleteSession removes a session and its turns.
func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fault.New(fault.UnknownResource, "unknown session %q", sessionID)
	}
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	return nil
}

// AppendTurn records one turn.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID string, turn models.Turn) error {
	if sessionID == "" {
		return fault.New(fault.InvalidInput, "session id is required")
	}
	s.mu.Lock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	s.mu.Unlock()
	return nil
}

// Turns returns turns in insertion order, optionally the most recent limit.
func (s *MemoryStore) Turns(_ context.Context, sessionID string, limit int) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]models.Turn(nil), turns...), nil
}

// ClearTurns drops the transcript but keeps the session.
func (s *MemoryStore) ClearTurns(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.turns, sessionID)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the memory driver.
func (s *MemoryStore) Close() error { return nil }
