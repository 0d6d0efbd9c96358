// Package redis provides a Redis-backed usage and request log store for
// deployments where several gateway instances share one ledger.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "chatgate:"
	usagePrefix = keyPrefix + "usage:"
	logsKey     = keyPrefix + "logs"

	// maxLogs caps the request log list.
	maxLogs = 1000
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Storage implements usage.Store and usage.LogStore on Redis.
type Storage struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection.
func New(opts Options) (*Storage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Storage{rdb: rdb}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb *redis.Client) *Storage {
	return &Storage{rdb: rdb}
}

// Ping checks the connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the connection.
func (s *Storage) Close() error {
	return s.rdb.Close()
}
