package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/seclane/authgate/ports"
)

// RedisStore is a Redis implementation of the durable tier. Keys are
// namespaced per session, which also keeps two sessions of the same user
// from racing on each other's markers.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a durable tier scoped to one session.
func NewRedisStore(client *redis.Client, sessionID string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "authgate:markers:" + sessionID + ":",
	}
}

var _ ports.KV = (*RedisStore)(nil)

// Get returns the value under key, with ok reporting presence.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read marker: %w", err)
	}
	return v, true, nil
}

// Set stores value under key with no expiry; the durable tier is cleared
// only by explicit action.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return nil
}

// Delete removes key. Absent keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete marker: %w", err)
	}
	return nil
}

// Clear removes every key in this session's scope.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear marker: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan markers: %w", err)
	}
	return nil
}
