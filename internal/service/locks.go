package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// SessionLocks serializes read-modify-write sequences on the cache of one
// session. Sessions hash onto a fixed set of mutexes, so two sessions may
// share a stripe.
type SessionLocks struct {
	stripes [lockStripes]sync.Mutex
}

// NewSessionLocks creates an unlocked set.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{}
}

// Lock locks the stripe of sessionID and returns its unlock function.
func (l *SessionLocks) Lock(sessionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
