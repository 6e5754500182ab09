// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package counter allocates visitor sequence numbers from Redis so several
// application instances can share one atomic counter per scope.
package counter

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("counter: closed")

// dayScopeTTL keeps daily counters around long enough to cover clock skew
// between instances around midnight.
const dayScopeTTL = 48 * time.Hour

// nextScript raises the counter to at least the floor, increments it and
// optionally sets a TTL, all in one round trip.
var nextScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if cur < floor then cur = floor end
cur = cur + 1
redis.call('SET', KEYS[1], cur)
local ttl = tonumber(ARGV[2])
if ttl > 0 then redis.call('EXPIRE', KEYS[1], ttl) end
return cur
`)

// RedisSequencer is a Redis-backed sequence allocator.
type RedisSequencer struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379/0)
	URL string

	// Prefix is prepended to all keys (e.g., "visitrack:")
	Prefix string

	// ConnectTimeout is the timeout for establishing a connection
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for write operations
	WriteTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Prefix:         "visitrack:",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
	}
}

// NewRedisSequencer connects to Redis and verifies the connection.
func NewRedisSequencer(opts Options) (*RedisSequencer, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.ConnectTimeout > 0 {
		redisOpts.DialTimeout = opts.ConnectTimeout
	}
	if opts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		redisOpts.WriteTimeout = opts.WriteTimeout
	}

	client := redis.NewClient(redisOpts)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisSequencer{client: client, prefix: opts.Prefix}, nil
}

// NewRedisSequencerFromURL creates a sequencer from a URL with default options.
func NewRedisSequencerFromURL(url, prefix string) (*RedisSequencer, error) {
	opts := DefaultOptions()
	opts.URL = url
	if prefix != "" {
		opts.Prefix = prefix
	}
	return NewRedisSequencer(opts)
}

func (s *RedisSequencer) key(scope string) string {
	return s.prefix + "seq:" + scope
}

// Next returns the next value of scope, never at or below floor.
func (s *RedisSequencer) Next(ctx context.Context, scope string, floor int64) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	var ttl int64
	if strings.HasPrefix(scope, "day:") {
		ttl = int64(dayScopeTTL / time.Second)
	}

	return nextScript.Run(ctx, s.client, []string{s.key(scope)}, floor, ttl).Int64()
}

// Reset removes every sequence key.
// Note: This uses SCAN + DEL which is safer than KEYS for production use.
func (s *RedisSequencer) Reset(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var cursor uint64
	pattern := s.prefix + "seq:*"

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Ping checks the Redis connection.
func (s *RedisSequencer) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisSequencer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
