package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/openwx/weather-gateway/internal/upstream"
)

// MemoryStore implements Store on go-cache. Safe for concurrent use.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an in-memory store. cleanupInterval controls how
// often expired entries are swept; expired entries are treated as misses
// regardless of sweep timing.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get implements Store.Get. Never errors.
func (s *MemoryStore) Get(ctx context.Context, key string) (upstream.Response, bool, error) {
	value, ok := s.cache.Get(key)
	if !ok {
		return upstream.Response{}, false, nil
	}
	resp, ok := value.(upstream.Response)
	if !ok {
		return upstream.Response{}, false, nil
	}
	return resp, true, nil
}

// Set implements Store.Set.
func (s *MemoryStore) Set(ctx context.Context, key string, value upstream.Response, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}
