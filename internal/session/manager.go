package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/pkg/models"
)

// Manager multiplexes sessions: a single-locked map from session id to
// runner, created on first reference and retained until explicit removal.
type Manager struct {
	root   string
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	runners map[string]*Runner
}

// NewManager creates a manager whose sessions start at the named root agent.
func NewManager(root string, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:    root,
		deps:    deps,
		logger:  logger.With("component", "sessions"),
		runners: make(map[string]*Runner),
	}
}

// GetOrCreate returns the runner for a session id, creating and persisting
// it on first reference. An empty id allocates a fresh session.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Runner, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	if runner, ok := m.runners[sessionID]; ok {
		m.mu.Unlock()
		return runner, nil
	}
	m.mu.Unlock()

	meta := models.SessionMeta{
		ID:        sessionID,
		UserID:    deriveUserID(sessionID),
		AppName:   m.root,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.deps.Store.SaveSession(ctx, meta); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if runner, ok := m.runners[sessionID]; ok {
		return runner, nil
	}
	runner := NewRunner(meta, m.root, m.deps)
	m.runners[sessionID] = runner
	m.logger.Info("session created", "session_id", sessionID, "user_id", meta.UserID)
	return runner, nil
}

// Get returns an existing runner without creating one.
func (m *Manager) Get(sessionID string) (*Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runner, ok := m.runners[sessionID]
	return runner, ok
}

// Remove deletes a session and its persisted history.
func (m *Manager) Remove(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	_, ok := m.runners[sessionID]
	delete(m.runners, sessionID)
	m.mu.Unlock()
	if !ok {
		return fault.New(fault.UnknownResource, "unknown session %q", sessionID)
	}
	return m.deps.Store.DeleteSession(ctx, sessionID)
}

// Reset clears a session's transcript without destroying the runner.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	runner, ok := m.Get(sessionID)
	if !ok {
		return fault.New(fault.UnknownResource, "unknown session %q", sessionID)
	}
	return runner.Reset(ctx)
}

// Rename updates a session's display name in memory and in the store.
func (m *Manager) Rename(ctx context.Context, sessionID, name string) (models.SessionMeta, error) {
	runner, ok := m.Get(sessionID)
	if !ok {
		return models.SessionMeta{}, fault.New(fault.UnknownResource, "unknown session %q", sessionID)
	}
	if err := m.deps.Store.RenameSession(ctx, sessionID, name); err != nil {
		return models.SessionMeta{}, err
	}
	runner.SetName(name)
	return runner.Meta(), nil
}

// List returns metadata for all live sessions, newest first.
func (m *Manager) List() []models.SessionMeta {
	m.mu.Lock()
	metas := make([]models.SessionMeta, 0, len(m.runners))
	for _, runner := range m.runners {
		metas = append(metas, runner.Meta())
	}
	m.mu.Unlock()

	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].ID < metas[j].ID
	})
	return metas
}

// deriveUserID maps a session id to a stable pseudo user identity.
func deriveUserID(sessionID string) string {
	if len(sessionID) > 8 {
		return "user_" + sessionID[:8]
	}
	return "user_" + sessionID
}
