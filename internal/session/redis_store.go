// Package session provides storage for per-session flash notifications.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFlashTTL bounds how long undelivered notifications are kept.
const DefaultFlashTTL = 10 * time.Minute

// Flash is one queued notification.
type Flash struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Store queues flashes per session key until they are drained.
type Store interface {
	Push(ctx context.Context, key string, flash Flash) error
	Drain(ctx context.Context, key string) ([]Flash, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisStore implements flash storage using Redis lists
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed flash store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "flash:",
		ttl:    DefaultFlashTTL,
	}
}

func (s *RedisStore) key(sessionKey string) string {
	return s.prefix + sessionKey
}

// Push appends a flash and refreshes the list expiry.
func (s *RedisStore) Push(ctx context.Context, key string, flash Flash) error {
	if flash.CreatedAt.IsZero() {
		flash.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(flash)
	if err != nil {
		return fmt.Errorf("marshal flash: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key(key), data)
	pipe.Expire(ctx, s.key(key), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push flash: %w", err)
	}
	return nil
}

// Drain returns all queued flashes in push order and removes them.
func (s *RedisStore) Drain(ctx context.Context, key string) ([]Flash, error) {
	pipe := s.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, s.key(key), 0, -1)
	pipe.Del(ctx, s.key(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain flashes: %w", err)
	}

	raw := rangeCmd.Val()
	flashes := make([]Flash, 0, len(raw))
	for _, item := range raw {
		var flash Flash
		if err := json.Unmarshal([]byte(item), &flash); err != nil {
			return nil, fmt.Errorf("unmarshal flash: %w", err)
		}
		flashes = append(flashes, flash)
	}
	return flashes, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
