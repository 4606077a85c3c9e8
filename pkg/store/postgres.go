package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yaqith/yaqith/pkg/classify"
)

// schema is applied idempotently at connect time. Audit tables carry no
// update path on purpose: rows are insert-only.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_active_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scan_records (
	id         UUID PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	modality   TEXT NOT NULL,
	input_ref  TEXT NOT NULL,
	triggered  BOOLEAN NOT NULL,
	confidence DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS phishing_attempts (
	id         UUID PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	source     TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_turns (
	id           UUID PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	user_message TEXT NOT NULL,
	bot_response TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_records_session ON scan_records(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_session ON phishing_attempts(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_chat_turns_created ON chat_turns(created_at DESC);
`

// PostgresStore is the production Store implementation on pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates the pool, verifies connectivity, and applies the
// schema.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// EnsureSession upserts the session row. The upsert itself is atomic, no
// advisory lock needed.
func (p *PostgresStore) EnsureSession(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidIdentity
	}

	_, err := p.pool.Exec(ctx, `
INSERT INTO sessions (id) VALUES ($1)
ON CONFLICT (id) DO UPDATE SET last_active_at = now();
`, id)
	if err != nil {
		return storageErr("ensure session", err)
	}
	return nil
}

// withSessionLock runs fn inside a transaction holding the per-session
// advisory lock. This serializes writes within one session (preserving
// created_at ordering) without blocking writes to other sessions.
func (p *PostgresStore) withSessionLock(ctx context.Context, sessionID string, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, sessionID); err != nil {
		return storageErr("session lock", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1);`, sessionID).Scan(&exists); err != nil {
		return storageErr("session lookup", err)
	}
	if !exists {
		return ErrUnknownSession
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// RecordScan appends an immutable scan record.
func (p *PostgresStore) RecordScan(ctx context.Context, sessionID string, modality classify.Modality, inputRef string, result classify.Result) error {
	return p.withSessionLock(ctx, sessionID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO scan_records (id, session_id, modality, input_ref, triggered, confidence, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`, uuid.New().String(), sessionID, string(modality), inputRef, result.Triggered, boundConfidence(result.Confidence), result.Reason)
		if err != nil {
			return storageErr("record scan", err)
		}
		return nil
	})
}

// RecordPhishingAttempt appends an escalation record. No uniqueness
// checks: repeat attempts are separate audit rows.
func (p *PostgresStore) RecordPhishingAttempt(ctx context.Context, sessionID string, source AttemptSource, content, reason string, confidence float64) error {
	return p.withSessionLock(ctx, sessionID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO phishing_attempts (id, session_id, source, content, reason, confidence)
VALUES ($1, $2, $3, $4, $5, $6);
`, uuid.New().String(), sessionID, string(source), content, reason, boundConfidence(confidence))
		if err != nil {
			return storageErr("record phishing attempt", err)
		}
		return nil
	})
}

// RecordChatTurn appends one conversational exchange.
func (p *PostgresStore) RecordChatTurn(ctx context.Context, sessionID, userMessage, botResponse string) error {
	return p.withSessionLock(ctx, sessionID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO chat_turns (id, session_id, user_message, bot_response)
VALUES ($1, $2, $3, $4);
`, uuid.New().String(), sessionID, userMessage, botResponse)
		if err != nil {
			return storageErr("record chat turn", err)
		}
		return nil
	})
}

// ChatHistory returns up to limit turns most-recent-first, optionally
// filtered to one session.
func (p *PostgresStore) ChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatTurn, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT id, session_id, user_message, bot_response, created_at
FROM chat_turns`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2;`
		args = append(args, sessionID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1;`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("chat history", err)
	}
	defer rows.Close()

	turns := []ChatTurn{}
	for rows.Next() {
		var t ChatTurn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserMessage, &t.BotResponse, &t.CreatedAt); err != nil {
			return nil, storageErr("chat history scan", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("chat history rows", err)
	}
	return turns, nil
}

// Ping is the trivial liveness read behind health().
func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// boundConfidence keeps the CHECK constraint honest even if an adapter
// misbehaves upstream.
func boundConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// storageErr wraps a driver error into the taxonomy, preserving
// ErrUnknownSession when it surfaces from inside a locked write.
func storageErr(op string, err error) error {
	if errors.Is(err, ErrUnknownSession) || errors.Is(err, ErrInvalidIdentity) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)
