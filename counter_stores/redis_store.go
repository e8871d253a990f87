package counter_stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kpumuk/throttling"
	"github.com/redis/go-redis/v9"
)

var (
	_ throttling.Store = &redisStore{}
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a counter store backed by Redis.
func NewRedisStore(client *redis.Client) throttling.Store {
	return &redisStore{
		client: client,
	}
}

// Fetch returns the counter at key, creating it with def and the given
// expiry when absent.
func (s *redisStore) Fetch(ctx context.Context, key string, expiresIn time.Duration, def string) (string, error) {
	// Redis pipeline to optimize network round trips.
	pipe := s.client.Pipeline()
	pipe.SetNX(ctx, key, def, expiresIn)
	getCmd := pipe.Get(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("error executing Redis pipeline for key %v: %w", key, err)
	}

	value, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("error reading key %v: %w", key, err)
	}

	return value, nil
}

// Increment adds one to the counter at key. INCR keeps the key's TTL.
func (s *redisStore) Increment(ctx context.Context, key string) error {
	if err := s.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("error incrementing key %v: %w", key, err)
	}
	return nil
}
