// Package history persists completed turns and session metadata. The
// runner hands a turn to the store before acknowledging it to the client;
// a write failure surfaces as a persistence fault and rolls the turn back.
package history

import (
	"context"

	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/pkg/models"
)

// Store is the chat-history contract. Implementations must make AppendTurn
// durable before returning; the runner treats a nil error as permission to
// acknowledge the turn.
type Store interface {
	// SaveSession inserts or updates session metadata.
	SaveSession(ctx context.Context, meta models.SessionMeta) error

	// Sessions lists sessions for a user and app, newest first.
	Sessions(ctx context.Context, userID, appName string) ([]models.SessionMeta, error)

	// RenameSession updates a session's display name.
	RenameSession(ctx context.Context, sessionID, name string) error

	// DeleteSession removes a session and all of its turns.
	DeleteSession(ctx context.Context, sessionID string) error

	// AppendTurn durably records one turn.
	AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error

	// Turns returns a session's turns in insertion order. A limit of 0
	// returns all of them; otherwise the most recent limit turns.
	Turns(ctx context.Context, sessionID string, limit int) ([]models.Turn, error)

	// ClearTurns drops a session's transcript but keeps the session row.
	ClearTurns(ctx context.Context, sessionID string) error

	// Close releases underlying resources.
	Close() error
}

// Supported driver names.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Open builds a store for the configured driver.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres:
		return OpenPostgres(dsn)
	default:
		return nil, fault.New(fault.InvalidInput, "unknown history driver %q", driver)
	}
}
