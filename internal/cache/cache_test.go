package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openwx/weather-gateway/internal/upstream"
)

// TestKey_Stable verifies that equivalent parameter sets produce the same
// key regardless of insertion order.
func TestKey_Stable(t *testing.T) {
	a := url.Values{}
	a.Set("appid", "k")
	a.Set("units", "metric")
	a.Set("q", "Baku,AZ")

	b := url.Values{}
	b.Set("q", "Baku,AZ")
	b.Set("units", "metric")
	b.Set("appid", "k")

	if Key("current", a) != Key("current", b) {
		t.Error("Key() differs for equivalent parameter sets")
	}
}

// TestKey_Distinct verifies that operation, parameters, and extra dimensions
// all contribute to the key.
func TestKey_Distinct(t *testing.T) {
	params := url.Values{}
	params.Set("q", "Baku,AZ")

	other := url.Values{}
	other.Set("q", "Ganja,AZ")

	if Key("current", params) == Key("forecast", params) {
		t.Error("Key() identical across operations")
	}
	if Key("current", params) == Key("current", other) {
		t.Error("Key() identical across parameter sets")
	}
	if Key("forecast", params, "3") == Key("forecast", params, "5") {
		t.Error("Key() identical across day counts")
	}
}

// TestMemoryStore_GetSet verifies the round trip and the miss path.
func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	value := upstream.Response{Status: 200, Body: []byte(`{"name":"Baku"}`)}
	if err := store.Set(ctx, "k1", value, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Status != 200 || string(got.Body) != `{"name":"Baku"}` {
		t.Errorf("Get() = %+v, want %+v", got, value)
	}

	_, ok, err = store.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for absent key")
	}
}

// TestMemoryStore_Expiry verifies that expired entries read as misses.
func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	value := upstream.Response{Status: 200, Body: []byte(`{}`)}
	if err := store.Set(ctx, "k1", value, 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	_, ok, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for expired entry")
	}
}

// TestResponseCache_SingleProducerCallPerWindow verifies the at-most-one
// upstream call per key per TTL window contract, including re-invocation
// after expiry.
func TestResponseCache_SingleProducerCallPerWindow(t *testing.T) {
	ctx := context.Background()
	rc := NewResponseCache(NewMemoryStore(time.Minute), zap.NewNop())

	calls := 0
	produce := func() (upstream.Response, error) {
		calls++
		return upstream.Response{Status: 200, Body: []byte(`{"n":1}`)}, nil
	}

	key := Key("current", url.Values{"q": []string{"Baku"}})
	ttl := 50 * time.Millisecond

	first, cached, err := rc.GetOrCompute(ctx, key, ttl, produce)
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if cached {
		t.Error("first GetOrCompute() reported a cache hit")
	}
	second, cached, err := rc.GetOrCompute(ctx, key, ttl, produce)
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if !cached {
		t.Error("second GetOrCompute() reported a cache miss")
	}
	if calls != 1 {
		t.Errorf("producer called %d times inside TTL, want 1", calls)
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("cached body %s differs from produced %s", second.Body, first.Body)
	}

	time.Sleep(60 * time.Millisecond)

	if _, _, err := rc.GetOrCompute(ctx, key, ttl, produce); err != nil {
		t.Fatalf("GetOrCompute() after expiry error = %v", err)
	}
	if calls != 2 {
		t.Errorf("producer called %d times after expiry, want 2", calls)
	}
}

// TestResponseCache_ProducerErrorNotCached verifies that a failing producer
// is retried on the next call instead of poisoning the window.
func TestResponseCache_ProducerErrorNotCached(t *testing.T) {
	ctx := context.Background()
	rc := NewResponseCache(NewMemoryStore(time.Minute), zap.NewNop())

	calls := 0
	boom := errors.New("connection refused")
	produce := func() (upstream.Response, error) {
		calls++
		if calls == 1 {
			return upstream.Response{}, boom
		}
		return upstream.Response{Status: 200, Body: []byte(`{}`)}, nil
	}

	if _, _, err := rc.GetOrCompute(ctx, "k", time.Minute, produce); !errors.Is(err, boom) {
		t.Fatalf("GetOrCompute() error = %v, want %v", err, boom)
	}
	if _, _, err := rc.GetOrCompute(ctx, "k", time.Minute, produce); err != nil {
		t.Fatalf("GetOrCompute() retry error = %v", err)
	}
	if calls != 2 {
		t.Errorf("producer called %d times, want 2", calls)
	}
}

// TestResponseCache_NonOKResponsesCached verifies that non-2xx provider
// responses are results and get memoized like any other.
func TestResponseCache_NonOKResponsesCached(t *testing.T) {
	ctx := context.Background()
	rc := NewResponseCache(NewMemoryStore(time.Minute), zap.NewNop())

	calls := 0
	produce := func() (upstream.Response, error) {
		calls++
		return upstream.Response{Status: 404, Body: []byte(`{"cod":"404"}`)}, nil
	}

	for i := 0; i < 2; i++ {
		resp, _, err := rc.GetOrCompute(ctx, "k", time.Minute, produce)
		if err != nil {
			t.Fatalf("GetOrCompute() error = %v", err)
		}
		if resp.Status != 404 {
			t.Errorf("GetOrCompute() status = %d, want 404", resp.Status)
		}
	}
	if calls != 1 {
		t.Errorf("producer called %d times, want 1", calls)
	}
}

// erroringStore fails every operation, simulating an unreachable backend.
type erroringStore struct{}

func (erroringStore) Get(ctx context.Context, key string) (upstream.Response, bool, error) {
	return upstream.Response{}, false, errors.New("memcache: connect timeout")
}

func (erroringStore) Set(ctx context.Context, key string, value upstream.Response, ttl time.Duration) error {
	return errors.New("memcache: connect timeout")
}

// TestResponseCache_StoreErrorsDegradeToMisses verifies that a broken store
// never fails a lookup; the producer result is still served.
func TestResponseCache_StoreErrorsDegradeToMisses(t *testing.T) {
	rc := NewResponseCache(erroringStore{}, zap.NewNop())

	resp, cached, err := rc.GetOrCompute(context.Background(), "k", time.Minute, func() (upstream.Response, error) {
		return upstream.Response{Status: 200, Body: []byte(`{}`)}, nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if cached {
		t.Error("GetOrCompute() reported a hit from a broken store")
	}
	if resp.Status != 200 {
		t.Errorf("GetOrCompute() status = %d, want 200", resp.Status)
	}
}
