package memory

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/cache"
)

type session struct {
	values    map[string][]byte
	expiresAt time.Time
}

// Store implements cache.Store in process memory. It is used for local
// development and tests; sessions expire ttl after their last write.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, sessionID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		return nil, cache.ErrMiss
	}
	v, ok := sess.values[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores all entries under one lock.
func (s *Store) Set(_ context.Context, sessionID string, entries ...cache.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		sess = &session{values: make(map[string][]byte, len(entries))}
		s.sessions[sessionID] = sess
	}
	for _, e := range entries {
		v := make([]byte, len(e.Value))
		copy(v, e.Value)
		sess.values[e.Key] = v
	}
	sess.expiresAt = s.now().Add(s.ttl)
	return nil
}

// Delete removes keys, or the whole session when none are given.
func (s *Store) Delete(_ context.Context, sessionID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keys) == 0 {
		delete(s.sessions, sessionID)
		return nil
	}
	if sess, ok := s.sessions[sessionID]; ok {
		for _, k := range keys {
			delete(sess.values, k)
		}
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) expired(sess *session) bool {
	return s.ttl > 0 && !s.now().Before(sess.expiresAt)
}
