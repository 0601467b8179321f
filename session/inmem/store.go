// Package inmem provides the default in-memory implementation of
// session.Store: a reader-writer-mutex-guarded map with no eviction.
package inmem

import (
	"context"
	"sync"

	"github.com/pluginrt/hostrt/session"
)

// Store is an in-memory, concurrency-safe session.Store. It never evicts
// entries; long-running deployments that need eviction or durability
// should provide their own session.Store implementation.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
}

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]session.Session)}
}

// Load implements session.Store.
func (s *Store) Load(_ context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, nil
	}
	return sess.Clone(), nil
}

// Save implements session.Store's compare-and-swap contract.
func (s *Store) Save(_ context.Context, id string, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.sessions[id]
	if current.Version != sess.Version {
		return session.Conflict(sess.Version, current.Version)
	}

	next := sess.Clone()
	next.Version = sess.Version + 1
	s.sessions[id] = next
	return nil
}
