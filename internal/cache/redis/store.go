package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/cache"
)

const keyPrefix = "storefront:session:"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Store implements cache.Store with one Redis hash per session. Every write
// refreshes the session TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration

	slowThreshold time.Duration
	logger        *slog.Logger
}

// NewStore creates a new Redis-backed session store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Get returns one field of the session hash.
func (s *Store) Get(ctx context.Context, sessionID, key string) (data []byte, err error) {
	ctx, end := s.trace(ctx, "hget", sessionID, 1)
	defer func() { end(err) }()

	data, err = s.client.HGet(ctx, sessionKey(sessionID), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return data, nil
}

// Set writes all entries and the TTL in one MULTI/EXEC.
func (s *Store) Set(ctx context.Context, sessionID string, entries ...cache.Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	ctx, end := s.trace(ctx, "hset", sessionID, len(entries))
	defer func() { end(err) }()

	key := sessionKey(sessionID)
	values := make([]any, 0, len(entries)*2)
	for _, e := range entries {
		values = append(values, e.Key, e.Value)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset session: %w", err)
	}
	return nil
}

// Delete removes fields from the session, or the whole session without keys.
func (s *Store) Delete(ctx context.Context, sessionID string, keys ...string) (err error) {
	ctx, end := s.trace(ctx, "hdel", sessionID, len(keys))
	defer func() { end(err) }()

	key := sessionKey(sessionID)
	if len(keys) == 0 {
		err = s.client.Del(ctx, key).Err()
	} else {
		err = s.client.HDel(ctx, key, keys...).Err()
	}
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
