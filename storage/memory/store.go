// Package memory provides an in-process Store, used in development and
// tests. Mappings sit in an expirable LRU; counters are tracked with
// explicit window deadlines under a single mutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Straits-AI/straits-agents-sub001/storage"
)

const mappingCacheSize = 10_000

type counter struct {
	count    int64
	deadline time.Time
}

type Store struct {
	mappings *expirable.LRU[string, []byte]
	mu       sync.Mutex
	counters map[string]*counter
	// now is swapped out by tests to step through rate-limit windows.
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New(ttl time.Duration) *Store {
	return &Store{
		mappings: expirable.NewLRU[string, []byte](mappingCacheSize, nil, ttl),
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	// the LRU carries a single TTL for all entries, set at construction
	s.mappings.Add(key, value)
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := s.mappings.Get(key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (s *Store) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.deadline) {
		c = &counter{deadline: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

func (s *Store) Close() error {
	return nil
}

// SetClock overrides the time source. Test hook only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
