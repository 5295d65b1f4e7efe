// Package verify resolves whether a lawyer session carries a verified
// credential, with results cached in Redis.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// Entry is the cached outcome of one credential lookup.
type Entry struct {
	UserID    int64     `json:"user_id"`
	Verified  bool      `json:"verified"`
	CheckedAt time.Time `json:"checked_at"`
}

// RedisCache stores lookup outcomes keyed by user id.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and checks the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
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

	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{
		client: client,
		prefix: "lawyer-verified:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(userID int64) string {
	return c.prefix + strconv.FormatInt(userID, 10)
}

// Get returns the cached entry. ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, userID int64) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup verification %d: %w", userID, err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal verification %d: %w", userID, err)
	}
	return entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, entry Entry) error {
	if entry.CheckedAt.IsZero() {
		entry.CheckedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	if err := c.client.Set(ctx, c.key(entry.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save verification %d: %w", entry.UserID, err)
	}
	return nil
}

// Invalidate drops the cached entry. CachedVerifier.Forget calls it when
// the store refuses an answer the cached verdict allowed.
func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate verification %d: %w", userID, err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
