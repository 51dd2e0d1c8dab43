package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"farmScope/internal/cache"
)

type collection struct {
	entries     map[string]json.RawMessage
	committedAt time.Time
}

// Store is an in-process cache.Store. Put swaps the whole collection under
// the write lock.
type Store struct {
	mu          sync.RWMutex
	collections map[string]collection

	leaseMu sync.Mutex
	leases  map[string]time.Time
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string]collection),
		leases:      make(map[string]time.Time),
		now:         time.Now,
	}
}

func (s *Store) Put(ctx context.Context, key string, entries map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := collection{entries: cache.Copy(entries), committedAt: s.now().UTC()}

	s.mu.Lock()
	s.collections[key] = next
	s.mu.Unlock()
	return nil
}

func (s *Store) GetAll(ctx context.Context, key string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	current := s.collections[key]
	s.mu.RUnlock()
	return cache.Copy(current.entries), nil
}

func (s *Store) CommittedAt(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	current, ok := s.collections[key]
	s.mu.RUnlock()
	return current.committedAt, ok, nil
}

// AcquireLease holds name until release is called or ttl elapses.
func (s *Store) AcquireLease(_ context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()

	now := s.now()
	if expires, ok := s.leases[name]; ok && now.Before(expires) {
		return nil, cache.ErrLeaseHeld
	}
	expires := now.Add(ttl)
	s.leases[name] = expires

	release := func(context.Context) error {
		s.leaseMu.Lock()
		defer s.leaseMu.Unlock()
		if current, ok := s.leases[name]; ok && current.Equal(expires) {
			delete(s.leases, name)
		}
		return nil
	}
	return release, nil
}

func (s *Store) Close() error {
	return nil
}

var (
	_ cache.Store  = (*Store)(nil)
	_ cache.Leaser = (*Store)(nil)
)
