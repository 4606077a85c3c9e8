package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yaqith/yaqith/pkg/classify"
)

// MemoryStore is the in-memory Store implementation. Suitable for tests,
// the one-shot CLI scan mode, and development without a database.
//
// Concurrency model: a store-level RWMutex guards the session map; each
// session carries its own mutex so writes within one session are
// serialized (keeping created_at ordering intact) while writes across
// sessions proceed in parallel.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	mu       sync.Mutex
	session  Session
	scans    []ScanRecord
	attempts []PhishingAttempt
	turns    []ChatTurn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
	}
}

// EnsureSession creates or touches a session.
func (m *MemoryStore) EnsureSession(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if s, ok := m.sessions[id]; ok {
		s.mu.Lock()
		s.session.LastActiveAt = now
		s.mu.Unlock()
		return nil
	}

	m.sessions[id] = &memorySession{
		session: Session{ID: id, CreatedAt: now, LastActiveAt: now},
	}
	return nil
}

// get returns the live session container, or nil.
func (m *MemoryStore) get(id string) *memorySession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Session returns a copy of the session row, for tests and reporting.
func (m *MemoryStore) Session(id string) (Session, bool) {
	s := m.get(id)
	if s == nil {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, true
}

// RecordScan appends an immutable scan record.
func (m *MemoryStore) RecordScan(ctx context.Context, sessionID string, modality classify.Modality, inputRef string, result classify.Result) error {
	s := m.get(sessionID)
	if s == nil {
		return ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, ScanRecord{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Modality:   modality,
		InputRef:   inputRef,
		Triggered:  result.Triggered,
		Confidence: result.Confidence,
		Reason:     result.Reason,
		CreatedAt:  time.Now(),
	})
	return nil
}

// RecordPhishingAttempt appends an escalation record.
func (m *MemoryStore) RecordPhishingAttempt(ctx context.Context, sessionID string, source AttemptSource, content, reason string, confidence float64) error {
	s := m.get(sessionID)
	if s == nil {
		return ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, PhishingAttempt{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Source:     source,
		Content:    content,
		Reason:     reason,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	})
	return nil
}

// RecordChatTurn appends one conversational exchange.
func (m *MemoryStore) RecordChatTurn(ctx context.Context, sessionID, userMessage, botResponse string) error {
	s := m.get(sessionID)
	if s == nil {
		return ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, ChatTurn{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		UserMessage: userMessage,
		BotResponse: botResponse,
		CreatedAt:   time.Now(),
	})
	return nil
}

// ChatHistory returns up to limit turns most-recent-first, across all
// sessions when sessionID is empty.
func (m *MemoryStore) ChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatTurn, error) {
	if limit <= 0 {
		limit = 50
	}

	var turns []ChatTurn
	if sessionID != "" {
		s := m.get(sessionID)
		if s == nil {
			return []ChatTurn{}, nil
		}
		s.mu.Lock()
		turns = append(turns, s.turns...)
		s.mu.Unlock()
	} else {
		m.mu.RLock()
		containers := make([]*memorySession, 0, len(m.sessions))
		for _, s := range m.sessions {
			containers = append(containers, s)
		}
		m.mu.RUnlock()
		for _, s := range containers {
			s.mu.Lock()
			turns = append(turns, s.turns...)
			s.mu.Unlock()
		}
	}

	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt.After(turns[j].CreatedAt)
	})

	if len(turns) > limit {
		turns = turns[:limit]
	}
	if turns == nil {
		turns = []ChatTurn{}
	}
	return turns, nil
}

// Scans returns a copy of a session's scan records, for tests.
func (m *MemoryStore) Scans(sessionID string) []ScanRecord {
	s := m.get(sessionID)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScanRecord, len(s.scans))
	copy(out, s.scans)
	return out
}

// Attempts returns a copy of a session's phishing attempts, for tests.
func (m *MemoryStore) Attempts(sessionID string) []PhishingAttempt {
	s := m.get(sessionID)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PhishingAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Ping always succeeds: memory is never unavailable.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
