package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkout:sess:"

// RedisStore is the production Store backed by a Redis hash per session.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Set stores a value in the session hash and refreshes the session TTL.
func (s *RedisStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	hashKey := keyPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hashKey, key, value)
	pipe.Expire(ctx, hashKey, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a value from the session hash.
func (s *RedisStore) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	value, err := s.client.HGet(ctx, keyPrefix+sessionID, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes a key from the session hash.
func (s *RedisStore) Delete(ctx context.Context, sessionID, key string) error {
	return s.client.HDel(ctx, keyPrefix+sessionID, key).Err()
}
