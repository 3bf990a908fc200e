package history

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/pkg/models"
)

// PostgresStore persists history in PostgreSQL via database/sql and pq.
type PostgresStore struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	app_name   TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS turns (
	seq        BIGSERIAL PRIMARY KEY,
	turn_id    TEXT NOT NULL,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	agent_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS turns_session_idx ON turns (session_id, seq);
`

// OpenPostgres connects, verifies the connection, and applies the schema.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "open postgres")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.Persistence, err, "ping postgres")
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.Persistence, err, "apply history schema")
	}
	return &PostgresStore{db: db}, nil
}

// SaveSession upserts session metadata.
func (s *PostgresStore) SaveSession(ctx context.Context, meta models.SessionMeta) error {
	if meta.ID == "" {
		return fault.New(fault.InvalidInput, "session id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, app_name, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		meta.ID, meta.UserID, meta.AppName, meta.Name, meta.CreatedAt)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "save session %s", meta.ID)
	}
	return nil
}

// Sessions lists sessions for a user and app, newest first.
func (s *PostgresStore) Sessions(ctx context.Context, userID, appName string) ([]models.SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, app_name, name, created_at
		FROM sessions WHERE user_id = $1 AND app_name = $2
		ORDER BY created_at DESC, id`,
		userID, appName)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "list sessions")
	}
	defer rows.Close()

	var out []models.SessionMeta
	for rows.Next() {
		var meta models.SessionMeta
		if err := rows.Scan(&meta.ID, &meta.UserID, &meta.AppName, &meta.Name, &meta.CreatedAt); err != nil {
			return nil, fault.Wrap(fault.Persistence, err, "scan session")
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "iterate sessions")
	}
	return out, nil
}

// RenameSession updates a session's display name.
func (s *PostgresStore) RenameSession(ctx context.Context, sessionID, name string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET name = $2 WHERE id = $1`, sessionID, name)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "rename session %s", sessionID)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fault.New(fault.UnknownResource, "unknown session %q", sessionID)
	}
	return nil
}

// DeleteSession removes a session; turns cascade.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "delete session %s", sessionID)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fault.New(fault.UnknownResource, "unknown session %q", sessionID)
	}
	return nil
}

// AppendTurn durably records one turn.
func (s *PostgresStore) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	if sessionID == "" {
		return fault.New(fault.InvalidInput, "session id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (turn_id, session_id, role, content, agent_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID, sessionID, turn.Role, turn.Content, turn.AgentName, turn.Timestamp)
	if err != nil {
		return fault.Wrap(fault.Persistence, err, "append turn to session %s", sessionID)
	}
	return nil
}

// Turns returns turns in insertion order, optionally the most recent limit.
func (s *PostgresStore) Turns(ctx context.Context, sessionID string, limit int) ([]models.Turn, error) {
	query := `
		SELECT turn_id, role, content, agent_name, created_at
		FROM turns WHERE session_id = $1 ORDER BY seq`
	args := []any{sessionID}
	if limit > 0 {
		// Take the tail, then restore insertion order.
		query = `
			SELECT turn_id, role, content, agent_name, created_at FROM (
				SELECT seq, turn_id, role, content, agent_name, created_at
				FROM turns WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
			) tail ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "query turns for session %s", sessionID)
	}
	defer rows.Close()

	var out []models.Turn
	for rows.Next() {
		var turn models.Turn
		if err := rows.Scan(&turn.ID, &turn.Role, &turn.Content, &turn.AgentName, &turn.Timestamp); err != nil {
			return nil, fault.Wrap(fault.Persistence, err, "scan turn")
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Persistence, err, "iterate turns")
	}
	return out, nil
}

// ClearTurns drops the transcript but keeps the session row.
func (s *PostgresStore) ClearTurns(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM turns WHERE session_id = $1`, sessionID); err != nil {
		return fault.Wrap(fault.Persistence, err, "clear turns for session %s", sessionID)
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }
