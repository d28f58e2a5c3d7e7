package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/odoo-agent/internal/concurrency"
	"github.com/harunnryd/odoo-agent/internal/config"
	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/model/contract"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Store keeps conversations in memory for the lifetime of the process. The
// map is guarded by an RWMutex; each session has its own lock so appends to
// different sessions never contend.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    *concurrency.KeyedMutex
	greeting string
	now      func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(greeting string, opts ...Option) *Store {
	if greeting == "" {
		greeting = config.DefaultAgentsGreeting
	}
	s := &Store{
		sessions: make(map[string]*Session),
		locks:    concurrency.NewKeyedMutex(),
		greeting: greeting,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a session whose transcript opens with a system greeting.
// An empty greeting uses the store default.
func (s *Store) Create(greeting string) Session {
	return s.create(uuid.NewString(), greeting)
}

func (s *Store) create(id, greeting string) Session {
	if greeting == "" {
		greeting = s.greeting
	}
	now := s.now()
	sess := &Session{
		ID:        id,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []Message{{
			ID:        ulid.Make().String(),
			Timestamp: now,
			Role:      RoleSystem,
			Content:   greeting,
		}},
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	slog.Debug("Session created", "session_id", id)
	return sess.clone()
}

// GetOrCreate returns the session with id, creating it when it does not
// exist. An empty id always creates a new session.
func (s *Store) GetOrCreate(id string) (Session, bool) {
	if id == "" {
		return s.Create(""), true
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if sess, ok := s.lookup(id); ok {
		return sess.clone(), false
	}
	return s.create(id, ""), true
}

func (s *Store) lookup(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) Get(id string) (Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok := s.lookup(id)
	if !ok {
		return Session{}, notFound(id)
	}
	return sess.clone(), nil
}

// Append adds messages to the transcript in order. Missing ids and
// timestamps are filled in.
func (s *Store) Append(id string, msgs ...Message) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok := s.lookup(id)
	if !ok {
		return notFound(id)
	}

	now := s.now()
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = ulid.Make().String()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		sess.Messages = append(sess.Messages, m)
	}
	sess.UpdatedAt = now
	return nil
}

// History returns up to limit of the most recent user and assistant
// messages, oldest first. System messages are never sent to the model.
// A limit of zero or less returns the whole conversation.
func (s *Store) History(id string, limit int) ([]contract.Message, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok := s.lookup(id)
	if !ok {
		return nil, notFound(id)
	}

	history := make([]contract.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		if m.Role == RoleSystem {
			continue
		}
		history = append(history, m.ToContractMessage())
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func (s *Store) Delete(id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return notFound(id)
	}
	delete(s.sessions, id)
	slog.Debug("Session deleted", "session_id", id)
	return nil
}

// List returns session summaries, most recently updated first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		if sess, err := s.Get(id); err == nil {
			out = append(out, sess.summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (s *Store) SetStatus(id string, status Status) error {
	switch status {
	case StatusActive, StatusExpired:
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown session status %q", status))
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok := s.lookup(id)
	if !ok {
		return notFound(id)
	}
	sess.Status = status
	sess.UpdatedAt = s.now()
	return nil
}

// SetMetadata records a key on the session, such as the active role.
func (s *Store) SetMetadata(id, key, value string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok := s.lookup(id)
	if !ok {
		return notFound(id)
	}
	if sess.Metadata == nil {
		sess.Metadata = make(map[string]string)
	}
	sess.Metadata[key] = value
	sess.UpdatedAt = s.now()
	return nil
}

// Clear drops the transcript but keeps the session.
func (s *Store) Clear(id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok := s.lookup(id)
	if !ok {
		return notFound(id)
	}
	sess.Messages = nil
	sess.UpdatedAt = s.now()
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func notFound(id string) error {
	return apperrors.NotFound(fmt.Sprintf("session %s not found", id))
}
