package service

import (
	"sync"
	"time"

	"github.com/noah-isme/driving-school-api/internal/reconcile"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

// SessionStoreConfig governs session retention.
type SessionStoreConfig struct {
	TTL time.Duration
	Now func() time.Time
	// OnResize is called with the number of live sessions after every change.
	OnResize func(count int)
}

type sessionEntry struct {
	mu      sync.Mutex
	session *reconcile.Session
	removed bool
}

// SessionStore keeps open edit sessions in memory. Access to a single session is
// serialised through its own lock; sessions idle for longer than the TTL expire.
type SessionStore struct {
	ttl      time.Duration
	now      func() time.Time
	onResize func(int)

	mu    sync.RWMutex
	items map[string]*sessionEntry
}

// NewSessionStore builds an empty store.
func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionStore{
		ttl:      cfg.TTL,
		now:      cfg.Now,
		onResize: cfg.OnResize,
		items:    make(map[string]*sessionEntry),
	}
}

// Put registers a session, replacing any session with the same id.
func (s *SessionStore) Put(session *reconcile.Session) {
	s.mu.Lock()
	s.items[session.ID()] = &sessionEntry{session: session}
	count := len(s.items)
	s.mu.Unlock()
	s.resized(count)
}

// With runs fn while holding the session lock.
func (s *SessionStore) With(id string, fn func(*reconcile.Session) error) error {
	s.mu.RLock()
	entry, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return appErrors.ErrSessionExpired
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return appErrors.ErrSessionExpired
	}
	if s.expired(entry.session) {
		entry.removed = true
		s.remove(id, entry)
		return appErrors.ErrSessionExpired
	}
	return fn(entry.session)
}

// Delete drops a session. It reports whether the session existed.
func (s *SessionStore) Delete(id string) bool {
	s.mu.RLock()
	entry, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	entry.mu.Lock()
	entry.removed = true
	entry.mu.Unlock()
	return s.remove(id, entry)
}

// Sweep evicts expired sessions and returns how many were removed. Sessions
// currently in use are skipped.
func (s *SessionStore) Sweep() int {
	s.mu.RLock()
	candidates := make(map[string]*sessionEntry, len(s.items))
	for id, entry := range s.items {
		candidates[id] = entry
	}
	s.mu.RUnlock()

	evicted := 0
	for id, entry := range candidates {
		if !entry.mu.TryLock() {
			continue
		}
		if !entry.removed && s.expired(entry.session) {
			entry.removed = true
			if s.remove(id, entry) {
				evicted++
			}
		}
		entry.mu.Unlock()
	}
	return evicted
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *SessionStore) expired(session *reconcile.Session) bool {
	return s.now().Sub(session.TouchedAt()) > s.ttl
}

func (s *SessionStore) remove(id string, entry *sessionEntry) bool {
	s.mu.Lock()
	current, ok := s.items[id]
	if ok && current == entry {
		delete(s.items, id)
	}
	count := len(s.items)
	s.mu.Unlock()
	s.resized(count)
	return ok && current == entry
}

func (s *SessionStore) resized(count int) {
	if s.onResize != nil {
		s.onResize(count)
	}
}
