// Package credstore persists per-identity authentication material as
// opaque blobs. The blob layout is owned by the protocol library; this
// package only stores and retrieves it.
package credstore

import (
	"context"
	"sync"
)

// Store is the credential persistence contract. Load returns (nil, nil)
// when no credential exists for the identity.
type Store interface {
	Load(ctx context.Context, identity string) ([]byte, error)
	Save(ctx context.Context, identity string, blob []byte) error
	Erase(ctx context.Context, identity string) error
}

// Serialized wraps a Store so that operations for one identity never run
// concurrently. Different identities proceed in parallel.
func Serialized(inner Store) Store {
	return &serialized{inner: inner, locks: make(map[string]*identityLock)}
}

type serialized struct {
	inner Store
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

func (s *serialized) acquire(identity string) *identityLock {
	s.mu.Lock()
	l, ok := s.locks[identity]
	if !ok {
		l = &identityLock{}
		s.locks[identity] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *serialized) release(identity string, l *identityLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, identity)
	}
	s.mu.Unlock()
}

func (s *serialized) Load(ctx context.Context, identity string) ([]byte, error) {
	l := s.acquire(identity)
	defer s.release(identity, l)
	return s.inner.Load(ctx, identity)
}

func (s *serialized) Save(ctx context.Context, identity string, blob []byte) error {
	l := s.acquire(identity)
	defer s.release(identity, l)
	return s.inner.Save(ctx, identity, blob)
}

func (s *serialized) Erase(ctx context.Context, identity string) error {
	l := s.acquire(identity)
	defer s.release(identity, l)
	return s.inner.Erase(ctx, identity)
}
