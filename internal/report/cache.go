package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/pkg/metrics"
	pkgredis "github.com/babblebase/filecount/pkg/redis"
	"github.com/babblebase/filecount/pkg/resilience"
)

const keyPrefix = "filecount:report:"

// ErrMiss is returned by a Backend for absent keys.
var ErrMiss = errors.New("cache miss")

// Backend is the key-value store behind a Cache.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type redisBackend struct {
	client *pkgredis.Client
}

// RedisBackend adapts a Redis client, reporting missing keys as ErrMiss.
func RedisBackend(client *pkgredis.Client) Backend {
	return redisBackend{client: client}
}

func (b redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, key)
	if pkgredis.IsNilError(err) {
		return nil, ErrMiss
	}
	return v, err
}

func (b redisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl)
}

func (b redisBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return b.client.FlushByPattern(ctx, pattern)
}

// Cache memoizes reports by document content and memory state. Concurrent
// requests for the same key share one computation. When the backend keeps
// failing, a circuit breaker skips it and every request is computed.
//
// A nil *Cache is valid and caches nothing.
type Cache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCache returns a Cache over backend. m may be nil.
func NewCache(backend Backend, ttl time.Duration, m *metrics.Metrics) *Cache {
	cfg := resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
	if m != nil {
		cfg.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Cache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("report-cache", cfg),
		metrics: m,
		logger:  slog.Default().With("component", "report-cache"),
	}
}

// Key identifies an analysis of content named filename, hashed with hasher
// against the memory with the given fingerprint. The filename takes part
// because it can decide the format.
func Key(content []byte, filename, hasher, fingerprint string) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(filename), []byte(hasher), []byte(fingerprint)} {
		h.Write(part)
		h.Write([]byte{0})
	}
	h.Write(content)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached report at key. Backend failures count as misses.
func (c *Cache) Get(ctx context.Context, key string) (*counter.Report, bool) {
	if c == nil {
		return nil, false
	}
	var data []byte
	err := c.breaker.ExecuteIgnoring(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	}, isMiss)
	if err != nil {
		if !isMiss(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.observe(false)
		return nil, false
	}
	var r counter.Report
	if err := json.Unmarshal(data, &r); err != nil {
		c.logger.Error("cache entry unreadable", "key", key, "error", err)
		c.observe(false)
		return nil, false
	}
	c.observe(true)
	return &r, true
}

// Set stores r at key. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, r *counter.Report) {
	if c == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the report at key, computing and storing it on a
// miss. The bool reports whether the result came from the cache.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func() (*counter.Report, error)) (*counter.Report, bool, error) {
	if c == nil {
		r, err := compute()
		return r, false, err
	}
	if r, ok := c.Get(ctx, key); ok {
		return r, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, r)
		return r, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*counter.Report), false, nil
}

// Invalidate drops every cached report.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, nil
	}
	n, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return n, err
	}
	c.logger.Info("cache invalidated", "keys_deleted", n)
	return n, nil
}

func (c *Cache) observe(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.Inc()
	} else {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func isMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
