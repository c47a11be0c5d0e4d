// Package redisstore implements the correlation store on Redis. Correlation
// entries map a generated application id to its job snapshot and live until
// explicitly released, so Redis runs without eviction for this keyspace.
package redisstore

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jobpilot/orchestrator/internal/domain"
)

// Store implements domain.CorrelationStore over a go-redis client.
type Store struct {
	Client *redis.Client
}

// New constructs a Store over the given client.
func New(client *redis.Client) *Store { return &Store{Client: client} }

// Get returns the snapshot for key, or ErrNotFound when no entry exists.
func (s *Store) Get(ctx domain.Context, key string) (string, error) {
	v, err := s.Client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("op=correlation.get key=%s: %w", key, domain.ErrNotFound)
		}
		return "", fmt.Errorf("op=correlation.get: %w", err)
	}
	return v, nil
}

// Set stores the snapshot without expiry.
func (s *Store) Set(ctx domain.Context, key, value string) error {
	if err := s.Client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("op=correlation.set: %w", err)
	}
	return nil
}

// Del removes the entry. Deleting a missing key is a no-op.
func (s *Store) Del(ctx domain.Context, key string) error {
	if err := s.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("op=correlation.del: %w", err)
	}
	return nil
}

// Exists reports whether the key is present.
func (s *Store) Exists(ctx domain.Context, key string) (bool, error) {
	n, err := s.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("op=correlation.exists: %w", err)
	}
	return n > 0, nil
}
