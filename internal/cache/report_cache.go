package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// DefaultPrefix namespaces every report key
const DefaultPrefix = "optionsrun:report:"

// ReportCache stores engine outputs keyed by operation and input hash. Engine
// components are pure, so identical inputs always produce the same report.
type ReportCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// Options for connecting the cache
type Options struct {
	Addr           string
	Password       string
	DB             int
	TTL            time.Duration
	ConnectTimeout time.Duration // total retry budget for the first ping
}

// Connect dials Redis and retries the first ping with exponential backoff
func Connect(ctx context.Context, opts Options) (*ReportCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = opts.ConnectTimeout

	operation := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Msg("Report cache connected")
	return New(rdb, opts.TTL), nil
}

// New wraps an existing client
func New(client redis.Cmdable, ttl time.Duration) *ReportCache {
	return &ReportCache{
		client: client,
		prefix: DefaultPrefix,
		ttl:    ttl,
	}
}

// Key builds the cache key for an operation and input hash
func (c *ReportCache) Key(kind, hash string) string {
	return c.prefix + kind + ":" + hash
}

// Get decodes a cached report into dst and reports whether it was found
func (c *ReportCache) Get(ctx context.Context, kind, hash string, dst interface{}) (bool, error) {
	val, err := c.client.Get(ctx, c.Key(kind, hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(val, dst); err != nil {
		return false, fmt.Errorf("decode cached %s report: %w", kind, err)
	}
	return true, nil
}

// Set stores a report with the configured TTL
func (c *ReportCache) Set(ctx context.Context, kind, hash string, report interface{}) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode %s report: %w", kind, err)
	}

	if err := c.client.Set(ctx, c.Key(kind, hash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a cached report
func (c *ReportCache) Delete(ctx context.Context, kind, hash string) error {
	if err := c.client.Del(ctx, c.Key(kind, hash)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Ping checks connectivity
func (c *ReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
