// Package redis wraps go-redis with the connection defaults and logging
// redisrun.Store wants: bounded dial/read/write timeouts and a small pool, so a
// stuck Redis never stalls a worker for longer than its own request timeout.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client embeds *redis.Client so callers keep the full command surface.
type Client struct {
	*redis.Client
	log *zap.Logger
}

// NewClient builds a client bound to one addr/db pair. Dial/read/write
// timeouts are kept short and non-configurable: this wrapper exists for
// internal bookkeeping (run records, sessions), not for general-purpose
// Redis access where an operator might need to tune them.
func NewClient(addr string, db int, log *zap.Logger) *Client {
	opts := &redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}

	log = log.Named("redis")
	c := &Client{Client: redis.NewClient(opts), log: log}
	log.Info("redis client initialized", zap.String("addr", addr), zap.Int("db", db))
	return c
}

// Ping checks connectivity with a short, fixed timeout, independent of
// whatever deadline the caller's own context carries.
func (c *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return c.Client.Ping(ctx).Err()
}
