package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"wellness-chatbot/pkg"
)

const (
	// DefaultIdleTTL is how long a session survives without a new turn.
	DefaultIdleTTL = 30 * time.Minute
	// DefaultSweepInterval is how often idle sessions are looked for.
	DefaultSweepInterval = time.Minute
)

// ErrSessionNotFound is returned for unknown or ended sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore holds the active sessions.
//
// Update gives fn exclusive use of the session: concurrent Updates of the
// same session run one after another, and fn sees every entry saved by the
// previous one.  Entries fn appends to sess.Transcript are saved when it
// returns nil, and the session counts as active again.
type SessionStore interface {
	Create(ctx context.Context) (*pkg.Session, error)
	Load(ctx context.Context, id string) (*pkg.Session, error)
	Update(ctx context.Context, id string, fn func(sess *pkg.Session) error) error
	End(ctx context.Context, id string) error
	// Expire ends every session whose last activity is before cutoff and
	// reports how many were ended.
	Expire(ctx context.Context, cutoff time.Time) (int, error)
}

// NewSession returns an empty session keyed by a fresh UUID.
func NewSession(now time.Time) *pkg.Session {
	return &pkg.Session{ID: uuid.NewString(), CreatedAt: now}
}

// NewEntry builds a transcript entry.  IDs are ULIDs so they sort in creation
// order.
func NewEntry(speaker pkg.Speaker, text string, now time.Time) pkg.TranscriptEntry {
	return pkg.TranscriptEntry{
		ID:        ulid.Make().String(),
		Speaker:   speaker,
		Text:      text,
		CreatedAt: now,
	}
}

// ReapIdle ends sessions idle for longer than ttl, checking every interval
// until ctx is done.
func ReapIdle(ctx context.Context, store SessionStore, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := store.Expire(ctx, time.Now().Add(-ttl))
		if err != nil && ctx.Err() == nil {
			log.Println("failed to expire idle sessions:", err)
		}
		if n > 0 {
			log.Printf("ended %d idle sessions", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type memorySession struct {
	turn       sync.Mutex
	sess       *pkg.Session
	lastActive time.Time
}

// MemoryStore keeps sessions in process memory.  Sessions disappear when they
// are ended, expire, or the process exits.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	Now      func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*memorySession{}}
}

// Len returns the number of active sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStore) Create(ctx context.Context) (*pkg.Session, error) {
	now := m.now()
	sess := NewSession(now)
	m.mu.Lock()
	m.sessions[sess.ID] = &memorySession{sess: sess, lastActive: now}
	m.mu.Unlock()
	return copySession(sess), nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*pkg.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(e.sess), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(sess *pkg.Session) error) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.turn.Lock()
	defer e.turn.Unlock()

	m.mu.Lock()
	if m.sessions[id] != e {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	e.lastActive = m.now()
	work := copySession(e.sess)
	m.mu.Unlock()

	base := len(work.Transcript)
	if err := fn(work); err != nil {
		return err
	}
	if len(work.Transcript) < base {
		return fmt.Errorf("session %s: transcript entries cannot be removed", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] != e {
		return ErrSessionNotFound
	}
	e.sess.Transcript = append(e.sess.Transcript, work.Transcript[base:]...)
	e.lastActive = m.now()
	return nil
}

func (m *MemoryStore) End(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Expire(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if e.lastActive.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func copySession(s *pkg.Session) *pkg.Session {
	out := *s
	out.Transcript = append([]pkg.TranscriptEntry(nil), s.Transcript...)
	return &out
}
