// Package store owns session identity and the append-only audit trail:
// scan records, escalated phishing attempts, and chat transcripts.
//
// Two implementations share one contract: a Postgres store (pgx) for
// production and an in-memory store for tests and single-shot CLI use.
// Records are immutable once written - the contract has no update or
// delete operations on audit data, only insertion and query.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/yaqith/yaqith/pkg/classify"
)

// Error taxonomy. Callers branch with errors.Is; implementations wrap
// these sentinels with detail.
var (
	// ErrInvalidIdentity rejects malformed (empty) session ids before any
	// side effect.
	ErrInvalidIdentity = errors.New("invalid session identity")

	// ErrUnknownSession means a record operation ran against a session
	// that was never established. Through the orchestrator's own call
	// sequence this should not occur: it is an integration error.
	ErrUnknownSession = errors.New("unknown session")

	// ErrStorageUnavailable wraps persistence-layer outages.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// AttemptSource tags who is responsible for an escalation: one modality,
// or "combined" when a multi-input request escalates as a whole.
type AttemptSource string

const (
	SourceText     AttemptSource = "text"
	SourceLogo     AttemptSource = "logo"
	SourceURL      AttemptSource = "url"
	SourceCombined AttemptSource = "combined"
)

// Session is the unit of continuity across one user's scans and chat
// turns. Created lazily on first reference, touched on every subsequent
// one, never deleted.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// ScanRecord is one modality's raw verdict for one input. Append-only.
// InputRef is the literal text, the URL string, or an image filename -
// never raw image bytes.
type ScanRecord struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Modality   classify.Modality `json:"modality"`
	InputRef   string            `json:"input_ref"`
	Triggered  bool              `json:"triggered"`
	Confidence float64           `json:"confidence"`
	Reason     string            `json:"reason"`
	CreatedAt  time.Time         `json:"created_at"`
}

// PhishingAttempt is one escalation audit record. Never deduplicated:
// this is an audit log, not a unique-violations table.
type PhishingAttempt struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Source     AttemptSource `json:"source"`
	Content    string        `json:"content"`
	Reason     string        `json:"reason"`
	Confidence float64       `json:"confidence"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ChatTurn is one user message and the bot's response. Append-only.
type ChatTurn struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the session & audit contract consumed by the orchestrator and
// the reporting endpoints. Every operation is atomic with respect to
// concurrent callers on the same session; writes within one session are
// serialized by the implementation, writes across sessions are not.
type Store interface {
	// EnsureSession creates the session on first reference, otherwise
	// only refreshes last_active_at. Idempotent. Empty id fails with
	// ErrInvalidIdentity before any side effect.
	EnsureSession(ctx context.Context, id string) error

	// RecordScan appends a ScanRecord. ErrUnknownSession when the session
	// was never established.
	RecordScan(ctx context.Context, sessionID string, modality classify.Modality, inputRef string, result classify.Result) error

	// RecordPhishingAttempt appends an escalation record. Never
	// deduplicates.
	RecordPhishingAttempt(ctx context.Context, sessionID string, source AttemptSource, content, reason string, confidence float64) error

	// RecordChatTurn appends one conversational exchange.
	RecordChatTurn(ctx context.Context, sessionID, userMessage, botResponse string) error

	// ChatHistory returns up to limit turns, most recent first. Empty
	// sessionID means all sessions. No matching turns is an empty slice,
	// not an error.
	ChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatTurn, error)

	// Ping is the lightweight liveness probe behind health().
	Ping(ctx context.Context) error
}
