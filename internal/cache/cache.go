// Package cache memoizes upstream responses for a bounded TTL, keyed by the
// fully resolved query parameters. Entries are only ever time-expired; there
// is no explicit invalidation. Concurrent misses on the same key may each
// trigger an upstream call; a cache stampede on first access is accepted
// rather than guarded with a per-key lock.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openwx/weather-gateway/internal/observability"
	"github.com/openwx/weather-gateway/internal/upstream"
)

// Store is the backing key/value store with per-entry TTL. Expired entries
// are indistinguishable from absent ones.
type Store interface {
	Get(ctx context.Context, key string) (upstream.Response, bool, error)
	Set(ctx context.Context, key string, value upstream.Response, ttl time.Duration) error
}

// Key derives a stable cache key from the operation name and the resolved
// upstream parameters. url.Values.Encode sorts keys, so equivalent parameter
// sets hash identically. extra carries operation-specific dimensions such as
// the requested forecast day count.
func Key(op string, params url.Values, extra ...string) string {
	parts := append([]string{op, params.Encode()}, extra...)
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return "weather_" + op + ":" + hex.EncodeToString(sum[:])
}

// ResponseCache wraps a Store with the get-or-compute contract used by the
// orchestrator.
type ResponseCache struct {
	store  Store
	logger *zap.Logger
}

// NewResponseCache creates a ResponseCache over the given store.
func NewResponseCache(store Store, logger *zap.Logger) *ResponseCache {
	return &ResponseCache{store: store, logger: logger}
}

// GetOrCompute returns the cached response for key when present and fresh;
// otherwise it invokes produce and caches the result for ttl. Store errors
// degrade to misses. Producer errors are returned uncached, so a transport
// failure does not poison the window; non-2xx responses are results and are
// cached like any other. The second return reports whether the response came
// from cache.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, produce func() (upstream.Response, error)) (upstream.Response, bool, error) {
	cached, ok, err := c.store.Get(ctx, key)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(opOf(key)).Inc()
		return cached, true, nil
	}

	value, err := produce()
	if err != nil {
		return upstream.Response{}, false, err
	}

	if err := c.store.Set(ctx, key, value, ttl); err != nil && c.logger != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return value, false, nil
}

// opOf recovers the operation prefix from a key for metric labels.
func opOf(key string) string {
	trimmed := strings.TrimPrefix(key, "weather_")
	op, _, found := strings.Cut(trimmed, ":")
	if !found {
		return "unknown"
	}
	return op
}
