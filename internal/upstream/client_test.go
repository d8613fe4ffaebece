package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(apiKey, weatherURL, geoURL string) *Client {
	return NewClient(apiKey, zap.NewNop(), Options{
		WeatherBaseURL: weatherURL,
		GeoBaseURL:     geoURL,
		AttemptTimeout: 2 * time.Second,
		MaxRetries:     2,
		RetryDelay:     5 * time.Millisecond,
	})
}

// TestCall_Success verifies a plain 200 round trip and the query parameters
// actually sent.
func TestCall_Success(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/weather" {
			t.Errorf("path = %q, want /weather", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"Baku"}`))
	}))
	defer srv.Close()

	client := testClient("key", srv.URL, srv.URL)
	params := url.Values{}
	params.Set("q", "Baku,AZ")
	params.Set("appid", "key")
	params.Set("units", "metric")

	resp, err := client.Call(context.Background(), OpCurrent, params, "cid-1")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Call() status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != `{"name":"Baku"}` {
		t.Errorf("Call() body = %s", resp.Body)
	}
	if gotQuery.Get("q") != "Baku,AZ" || gotQuery.Get("units") != "metric" {
		t.Errorf("upstream received query %v", gotQuery)
	}
}

// TestCall_CorrelationHeaderOnEveryAttempt verifies that the correlation id
// travels on each retry attempt, not just the first.
func TestCall_CorrelationHeaderOnEveryAttempt(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Correlation-ID"); got != "cid-42" {
			t.Errorf("attempt %d correlation id = %q, want cid-42", atomic.LoadInt32(&attempts), got)
		}
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := testClient("key", srv.URL, srv.URL)
	resp, err := client.Call(context.Background(), OpCurrent, url.Values{}, "cid-42")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Call() status = %d after retries, want 200", resp.Status)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("upstream saw %d attempts, want 3", got)
	}
}

// TestCall_ClientErrorNotRetried verifies that a 404 comes back on the first
// attempt as a result, not an error.
func TestCall_ClientErrorNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	}))
	defer srv.Close()

	client := testClient("key", srv.URL, srv.URL)
	resp, err := client.Call(context.Background(), OpCurrent, url.Values{}, "cid")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Errorf("Call() status = %d, want 404", resp.Status)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("upstream saw %d attempts, want 1", got)
	}
}

// TestCall_ServerErrorExhaustsRetries verifies that a persistent 5xx is
// retried to the limit and the last response is still returned as a result.
func TestCall_ServerErrorExhaustsRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream down"}`))
	}))
	defer srv.Close()

	client := testClient("key", srv.URL, srv.URL)
	resp, err := client.Call(context.Background(), OpCurrent, url.Values{}, "cid")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Status != http.StatusBadGateway {
		t.Errorf("Call() status = %d, want 502", resp.Status)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("upstream saw %d attempts, want 3", got)
	}
}

// TestCall_TransportFailure verifies that a dead upstream yields an error
// after all attempts.
func TestCall_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := testClient("key", srv.URL, srv.URL)
	_, err := client.Call(context.Background(), OpCurrent, url.Values{}, "cid")
	if err == nil {
		t.Fatal("Call() error = nil for unreachable upstream")
	}
}

// TestCall_EndpointRouting verifies the operation-to-endpoint mapping.
func TestCall_EndpointRouting(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := testClient("key", srv.URL+"/data/2.5", srv.URL+"/geo/1.0")
	for _, op := range []string{OpCurrent, OpForecast, OpSearch} {
		if _, err := client.Call(context.Background(), op, url.Values{}, "cid"); err != nil {
			t.Fatalf("Call(%s) error = %v", op, err)
		}
	}

	want := []string{"/data/2.5/weather", "/data/2.5/forecast", "/geo/1.0/direct"}
	for i, path := range want {
		if paths[i] != path {
			t.Errorf("operation %d hit %q, want %q", i, paths[i], path)
		}
	}

	if _, err := client.Call(context.Background(), "bogus", url.Values{}, "cid"); err == nil {
		t.Error("Call(bogus) error = nil, want ErrUnknownOperation")
	}
}

// TestCall_AttemptTimeout verifies that a hung upstream is abandoned after
// the per-attempt timeout instead of blocking the request forever.
func TestCall_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	// Defers run LIFO: release the handler before srv.Close waits for it.
	defer srv.Close()
	defer close(release)

	client := NewClient("key", zap.NewNop(), Options{
		WeatherBaseURL: srv.URL,
		GeoBaseURL:     srv.URL,
		AttemptTimeout: 30 * time.Millisecond,
		MaxRetries:     0,
		RetryDelay:     time.Millisecond,
	})

	start := time.Now()
	_, err := client.Call(context.Background(), OpCurrent, url.Values{}, "cid")
	if err == nil {
		t.Fatal("Call() error = nil for hung upstream")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Call() took %v, timeout not applied", elapsed)
	}
}
