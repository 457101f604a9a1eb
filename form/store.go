package form

import (
	"context"
	"sync"
	"time"
)

// Store maps (owner, flowID) to sessions. Implementations must be safe for
// concurrent use; serialization of get-modify-put cycles is the engine's job.
type Store interface {
	Get(ctx context.Context, owner int64, flowID string) (*Session, error)
	Put(ctx context.Context, owner int64, flowID string, sess *Session) error
	Remove(ctx context.Context, owner int64, flowID string) error
	// ActiveFlow returns the flow id of the owner's in-flight session, if any.
	ActiveFlow(ctx context.Context, owner int64) (string, error)
}

type sessionKey struct {
	owner int64
	flow  string
}

// MemoryStore is a process-lifetime Store with idle-TTL eviction.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*Session
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates an in-memory store. A positive idleTTL starts a
// janitor that evicts sessions untouched for longer than the TTL.
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[sessionKey]*Session),
		ttl:      idleTTL,
		stop:     make(chan struct{}),
	}
	if idleTTL > 0 {
		go m.janitor()
	}
	return m
}

// Get returns a copy of the stored session or ErrSessionNotFound. Sessions
// are copied on both Get and Put so callers never share mutable state with
// the store; concurrent readers like ActiveFlow only ever see snapshots.
func (m *MemoryStore) Get(_ context.Context, owner int64, flowID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionKey{owner, flowID}]
	if !ok || m.expired(sess) {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Put stores a copy of the session, replacing any previous one for the key.
func (m *MemoryStore) Put(_ context.Context, owner int64, flowID string, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionKey{owner, flowID}] = sess.Clone()
	return nil
}

// Remove deletes the session for the key; removing a missing key is a no-op.
func (m *MemoryStore) Remove(_ context.Context, owner int64, flowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey{owner, flowID})
	return nil
}

// ActiveFlow returns the owner's in-flight flow or ErrSessionNotFound.
func (m *MemoryStore) ActiveFlow(_ context.Context, owner int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, sess := range m.sessions {
		if key.owner == owner && sess.Active() && !m.expired(sess) {
			return key.flow, nil
		}
	}
	return "", ErrSessionNotFound
}

// Close stops the eviction janitor.
func (m *MemoryStore) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryStore) expired(sess *Session) bool {
	return m.ttl > 0 && time.Since(sess.UpdatedAt) > m.ttl
}

func (m *MemoryStore) janitor() {
	interval := m.ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *MemoryStore) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, sess := range m.sessions {
		if time.Since(sess.UpdatedAt) > m.ttl {
			delete(m.sessions, key)
		}
	}
}
