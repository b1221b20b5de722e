// Package redis backs the operation mapping and rate-limit counters with a
// Redis instance. INCR gives the atomic per-key counter, EXPIRE NX starts
// the window on first use, SET with expiry covers the TTL mappings.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Straits-AI/straits-agents-sub001/storage"
)

type Store struct {
	client *redis.Client
}

var _ storage.Store = (*Store)(nil)

// New connects to the Redis instance at the given URL and verifies the
// connection before returning.
func New(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// EXPIRE NX only sets the TTL when none exists, so the window is
	// anchored to the first increment.
	if err := s.client.ExpireNX(ctx, key, window).Err(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
