package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/openwx/weather-gateway/internal/upstream"
)

// MemcachedStore implements Store using memcached, for deployments where
// multiple gateway instances should share one response cache.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated
// list (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns use package defaults when zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on
// transport or decode errors.
func (s *MemcachedStore) Get(ctx context.Context, key string) (upstream.Response, bool, error) {
	if ctx.Err() != nil {
		return upstream.Response{}, false, ctx.Err()
	}
	item, err := s.client.Get(key)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return upstream.Response{}, false, nil
		}
		return upstream.Response{}, false, err
	}
	var resp upstream.Response
	if err := json.Unmarshal(item.Value, &resp); err != nil {
		return upstream.Response{}, false, err
	}
	return resp, true, nil
}

// Set implements Store.Set.
func (s *MemcachedStore) Set(ctx context.Context, key string, value upstream.Response, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 120
	}
	return s.client.Set(&memcache.Item{
		Key:        key,
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
