// Package redis backs the durable queue, the payload side-table, and the
// cross-process event relay with Redis. Queues are Sorted Sets scored by
// run time, payloads are JSON strings, and the relay rides Redis
// pub/sub.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/stream"
)

// Compile-time interface checks.
var (
	_ job.QueueStore   = (*Store)(nil)
	_ job.PayloadStore = (*Store)(nil)
	_ stream.Relay     = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the queue, payload, and relay contracts backed by
// Redis. Job records live elsewhere (store/postgres); Redis carries the
// ephemeral, high-churn pieces.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis
// client lifecycle.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() *redis.Client { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close(_ context.Context) error { return nil }
