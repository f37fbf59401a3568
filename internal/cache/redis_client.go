// Package cache holds rendered ranking views in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/sirupsen/logrus"
)

// DefaultTTL bounds how stale a cached page may get between recomputations.
const DefaultTTL = 15 * time.Minute

// RankingPattern matches every cached leaderboard page.
const RankingPattern = "ranking:*"

// Client wraps Redis client with caching helpers
type Client struct {
	client *redis.Client
	logger logrus.FieldLogger
	ttl    time.Duration // Default TTL for cached items
}

// NewClient connects to addr and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, ttl time.Duration, logger logrus.FieldLogger) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address missing")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password, // Empty string if no password
		DB:       0,
	})

	c := &Client{
		client: client,
		logger: logging.OrDiscard(logger).WithField("component", "redis"),
		ttl:    ttl,
	}

	// fail fast on startup
	if err := c.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	c.logger.WithField("addr", addr).Info("redis client connected")
	return c, nil
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Get unmarshals the cached value of key into target. A miss is not an error.
func (c *Client) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.WithField("key", key).Debug("cache miss")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}

	if err := json.Unmarshal(val, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for key %s: %w", key, err)
	}

	c.logger.WithField("key", key).Debug("cache hit")
	return true, nil
}

// Set stores value as JSON with the default TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores value as JSON with ttl.
func (c *Client) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", key, err)
	}

	c.logger.WithField("key", key).WithField("ttl", ttl.String()).Debug("cache set")
	return nil
}

// Delete removes a key from cache
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed for key %s: %w", key, err)
	}
	return nil
}

// DeletePattern deletes all keys matching a pattern
func (c *Client) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error
		batch, cursor, err = c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan failed for pattern %s: %w", pattern, err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delete failed for pattern %s: %w", pattern, err)
	}

	c.logger.WithFields(logrus.Fields{"pattern": pattern, "deleted": deleted}).Info("cache pattern delete")
	return deleted, nil
}

// InvalidateRankings drops every cached leaderboard page.
func (c *Client) InvalidateRankings(ctx context.Context) error {
	_, err := c.DeletePattern(ctx, RankingPattern)
	return err
}
