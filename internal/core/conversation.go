package core

import (
	"encoding/json"
	"errors"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/poe-chat/chatd/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
)

// KV is the durable key/value state the services persist into.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type snapshot struct {
	sessions []store.Session // newest first
	activeID string
}

// ConversationStore owns the session list. Writers are serialised by a
// mutex and publish a new immutable snapshot; readers never block.
type ConversationStore struct {
	mu    sync.Mutex
	kv    KV
	state atomic.Pointer[snapshot]
	now   func() time.Time
}

// NewConversationStore loads the persisted sessions. Unreadable state is
// logged and replaced by an empty list.
func NewConversationStore(kv KV) *ConversationStore {
	s := &ConversationStore{kv: kv, now: time.Now}
	s.state.Store(&snapshot{sessions: loadSessions(kv)})
	return s
}

func loadSessions(kv KV) []store.Session {
	raw, ok, err := kv.Get(store.KeySessions)
	if err != nil {
		log.Printf("Failed to load sessions: %v", err)
		return nil
	}
	if !ok {
		return nil
	}
	var sessions []store.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		log.Printf("Failed to parse stored sessions, starting empty: %v", err)
		return nil
	}
	return sessions
}

func (s *ConversationStore) nowMillis() int64 {
	return s.now().UnixMilli()
}

// Sessions returns all sessions, newest first.
func (s *ConversationStore) Sessions() []store.Session {
	return slices.Clone(s.state.Load().sessions)
}

func (s *ConversationStore) Session(id string) (store.Session, bool) {
	snap := s.state.Load()
	i := indexOfSession(snap.sessions, id)
	if i < 0 {
		return store.Session{}, false
	}
	return snap.sessions[i], true
}

// Active returns the selected session, if any.
func (s *ConversationStore) Active() (store.Session, bool) {
	snap := s.state.Load()
	if snap.activeID == "" {
		return store.Session{}, false
	}
	return s.Session(snap.activeID)
}

// CreateSession prepends an empty session and selects it.
func (s *ConversationStore) CreateSession(modelID, title string) store.Session {
	now := s.nowMillis()
	session := store.Session{
		ID:        uuid.New().String(),
		Title:     title,
		Messages:  []store.Message{},
		ModelID:   modelID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mutate(func(snap *snapshot) error {
		snap.sessions = append([]store.Session{session}, snap.sessions...)
		snap.activeID = session.ID
		return nil
	})
	return session
}

func (s *ConversationStore) DeleteSession(id string) error {
	return s.mutate(func(snap *snapshot) error {
		i := indexOfSession(snap.sessions, id)
		if i < 0 {
			return ErrSessionNotFound
		}
		snap.sessions = slices.Delete(snap.sessions, i, i+1)
		if snap.activeID == id {
			snap.activeID = ""
		}
		return nil
	})
}

// SelectSession makes id the active session and returns it so the caller can
// sync the selected model.
func (s *ConversationStore) SelectSession(id string) (store.Session, error) {
	var selected store.Session
	err := s.mutate(func(snap *snapshot) error {
		i := indexOfSession(snap.sessions, id)
		if i < 0 {
			return ErrSessionNotFound
		}
		snap.activeID = id
		selected = snap.sessions[i]
		return nil
	})
	return selected, err
}

// UpdateSession applies fn to a private copy of the session.
func (s *ConversationStore) UpdateSession(id string, fn func(*store.Session) error) error {
	return s.mutate(func(snap *snapshot) error {
		i := indexOfSession(snap.sessions, id)
		if i < 0 {
			return ErrSessionNotFound
		}
		session := snap.sessions[i]
		session.Messages = slices.Clone(session.Messages)
		if err := fn(&session); err != nil {
			return err
		}
		snap.sessions[i] = session
		return nil
	})
}

// ReplaceMessages swaps the message list for fn's result and bumps
// UpdatedAt.
func (s *ConversationStore) ReplaceMessages(id string, fn func([]store.Message) ([]store.Message, error)) error {
	return s.UpdateSession(id, func(session *store.Session) error {
		msgs, err := fn(session.Messages)
		if err != nil {
			return err
		}
		session.Messages = msgs
		session.UpdatedAt = s.nowMillis()
		return nil
	})
}

func (s *ConversationStore) AppendMessage(id string, msg store.Message) error {
	return s.UpdateSession(id, func(session *store.Session) error {
		session.Messages = append(session.Messages, msg)
		session.UpdatedAt = s.nowMillis()
		return nil
	})
}

// UpdateMessage re-targets a message by id. It fails with
// ErrMessageNotFound when the message was removed in the meantime.
func (s *ConversationStore) UpdateMessage(sessionID, messageID string, fn func(*store.Message)) (store.Message, error) {
	var updated store.Message
	err := s.UpdateSession(sessionID, func(session *store.Session) error {
		i := indexOfMessage(session.Messages, messageID)
		if i < 0 {
			return ErrMessageNotFound
		}
		fn(&session.Messages[i])
		updated = session.Messages[i]
		session.UpdatedAt = s.nowMillis()
		return nil
	})
	return updated, err
}

// mutate copies the current snapshot, applies fn and publishes the result.
// Persistence failures are logged; memory stays authoritative.
func (s *ConversationStore) mutate(fn func(*snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	next := &snapshot{
		sessions: slices.Clone(cur.sessions),
		activeID: cur.activeID,
	}
	if err := fn(next); err != nil {
		return err
	}
	s.state.Store(next)
	s.persist(next.sessions)
	return nil
}

func (s *ConversationStore) persist(sessions []store.Session) {
	if sessions == nil {
		sessions = []store.Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		log.Printf("Failed to encode sessions: %v", err)
		return
	}
	if err := s.kv.Set(store.KeySessions, string(data)); err != nil {
		log.Printf("Failed to save sessions (likely storage limit reached): %v", err)
	}
}

func indexOfSession(sessions []store.Session, id string) int {
	return slices.IndexFunc(sessions, func(s store.Session) bool { return s.ID == id })
}

func indexOfMessage(msgs []store.Message, id string) int {
	return slices.IndexFunc(msgs, func(m store.Message) bool { return m.ID == id })
}
