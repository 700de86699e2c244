// Package redis implements the pending-work counter on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

const storeName = "redis"

// Config holds Redis connection configuration.
type Config struct {
	Address  string
	Password string
	DB       int
}

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const connectionTimeout = 5 * time.Second

// NewClient creates a Redis client and verifies the connection.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Counter implements jobs.PendingCounter using job:<id>:pending keys.
type Counter struct {
	client redis.Cmdable
}

// NewCounter wraps client.
func NewCounter(client redis.Cmdable) (*Counter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Counter{client: client}, nil
}

// Seed sets the counter to value without expiry.
func (c *Counter) Seed(ctx context.Context, jobID int64, value int64) error {
	if err := c.client.Set(ctx, jobs.PendingKey(jobID), value, 0).Err(); err != nil {
		return jobs.PrimaryError(storeName, "seed", err)
	}
	return nil
}

// Decrement uses DECR so concurrent workers never lose an update.
func (c *Counter) Decrement(ctx context.Context, jobID int64) (int64, error) {
	v, err := c.client.Decr(ctx, jobs.PendingKey(jobID)).Result()
	if err != nil {
		return 0, jobs.PrimaryError(storeName, "decrement", err)
	}
	return v, nil
}

// Get returns found=false for a missing key.
func (c *Counter) Get(ctx context.Context, jobID int64) (int64, bool, error) {
	v, err := c.client.Get(ctx, jobs.PendingKey(jobID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, jobs.PrimaryError(storeName, "get", err)
	}
	return v, true, nil
}
