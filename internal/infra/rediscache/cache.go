// Package rediscache provides a Redis-backed cache of like status.
package rediscache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
)

const keyPrefix = "melodystream:like:"

// Config represents the Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// LikeCache caches whether a user likes a song.
type LikeCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*LikeCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}

	zlog.Info().Msgf("rediscache: connected: addr=%s db=%d", cfg.Addr, cfg.DB)
	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, ttl time.Duration) *LikeCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LikeCache{client: client, ttl: ttl}
}

// Get returns the cached like status. ok is false on a cache miss.
func (c *LikeCache) Get(ctx context.Context, userID, songID string) (liked bool, ok bool, err error) {
	v, err := c.client.Get(ctx, key(userID, songID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, errors.Wrap(err, "failed to read like status")
	}
	return v == "1", true, nil
}

// Set stores the like status.
func (c *LikeCache) Set(ctx context.Context, userID, songID string, liked bool) error {
	v := "0"
	if liked {
		v = "1"
	}
	return errors.Wrap(c.client.Set(ctx, key(userID, songID), v, c.ttl).Err(), "failed to write like status")
}

// Invalidate drops the cached like status.
func (c *LikeCache) Invalidate(ctx context.Context, userID, songID string) error {
	return errors.Wrap(c.client.Del(ctx, key(userID, songID)).Err(), "failed to invalidate like status")
}

// Close closes the Redis client.
func (c *LikeCache) Close() error {
	return c.client.Close()
}

func key(userID, songID string) string {
	return keyPrefix + userID + ":" + songID
}
