// Package upstream talks to the OpenWeatherMap HTTP API. Calls are retried
// with a fixed inter-attempt delay, bounded by a per-attempt timeout, tagged
// with the request's correlation id, and logged once per logical operation.
// Non-2xx provider responses are returned as results, never as errors, so
// callers can forward the provider's status and payload.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/openwx/weather-gateway/internal/observability"
)

// Operation names routed to provider endpoints. Search goes to the direct
// geocoding endpoint; the rest go to the data API.
const (
	OpCurrent  = "current"
	OpForecast = "forecast"
	OpSearch   = "search"
)

const (
	defaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5"
	defaultGeoBaseURL     = "https://api.openweathermap.org/geo/1.0"
)

var (
	// ErrUnknownOperation is returned for operation names without an endpoint.
	ErrUnknownOperation = errors.New("unknown upstream operation")
	// ErrCircuitOpen is returned when the breaker rejects a call outright.
	ErrCircuitOpen = errors.New("upstream circuit open")
)

// Response is a provider reply: status code plus raw body. Any status is a
// valid Response; transport failures are surfaced as errors instead.
type Response struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// OK reports whether the response carries a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client performs retried, correlation-tagged calls against the provider.
type Client struct {
	apiKey         string
	weatherBaseURL string
	geoBaseURL     string
	httpClient     *http.Client
	logger         *zap.Logger
	attemptTimeout time.Duration
	maxRetries     int
	retryDelay     time.Duration
	breaker        *gobreaker.CircuitBreaker
}

// Options tunes the client. Zero base URLs, timeout, and delay fall back to
// the production defaults; MaxRetries of zero means single-attempt calls.
type Options struct {
	WeatherBaseURL string
	GeoBaseURL     string
	AttemptTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// NewClient creates a Client. The API key may be empty; the orchestrator
// rejects lookups before calling upstream in that case, and Geocode treats a
// missing key as a soft failure.
func NewClient(apiKey string, logger *zap.Logger, opts Options) *Client {
	if opts.WeatherBaseURL == "" {
		opts.WeatherBaseURL = defaultWeatherBaseURL
	}
	if opts.GeoBaseURL == "" {
		opts.GeoBaseURL = defaultGeoBaseURL
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	return &Client{
		apiKey:         apiKey,
		weatherBaseURL: opts.WeatherBaseURL,
		geoBaseURL:     opts.GeoBaseURL,
		httpClient:     &http.Client{},
		logger:         logger,
		attemptTimeout: opts.AttemptTimeout,
		maxRetries:     opts.MaxRetries,
		retryDelay:     opts.RetryDelay,
	}
}

// HasAPIKey reports whether a provider credential is configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// APIKey returns the configured provider credential ("" when absent).
func (c *Client) APIKey() string {
	return c.apiKey
}

// SetBreaker installs a circuit breaker around individual attempts. When the
// breaker is open, Call fails fast with ErrCircuitOpen.
func (c *Client) SetBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

func (c *Client) endpoint(op string) (string, error) {
	switch op {
	case OpCurrent:
		return c.weatherBaseURL + "/weather", nil
	case OpForecast:
		return c.weatherBaseURL + "/forecast", nil
	case OpSearch:
		return c.geoBaseURL + "/direct", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
}

// Call performs one logical provider operation with up to maxRetries+1
// attempts. Attempts retry on transport errors, 429, and 5xx; any other
// status is returned immediately. The last non-2xx response is returned when
// retries run out; an error is returned only when no response was obtained.
// One structured log record is emitted per Call, success or failure.
func (c *Client) Call(ctx context.Context, op string, params url.Values, correlationID string) (Response, error) {
	endpoint, err := c.endpoint(op)
	if err != nil {
		return Response{}, err
	}

	start := time.Now()
	var lastResp Response
	var haveResp bool
	var lastErr error

attempts:
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attempts
			case <-time.After(c.retryDelay):
			}
		}

		resp, err := c.attempt(ctx, endpoint, params, correlationID)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrCircuitOpen) {
				break attempts
			}
			continue
		}
		lastResp, haveResp = resp, true
		if !retryableStatus(resp.Status) {
			break attempts
		}
		lastErr = fmt.Errorf("upstream status %d", resp.Status)
	}

	elapsed := time.Since(start)
	status := 0
	logErr := lastErr
	if haveResp {
		status = lastResp.Status
		logErr = nil
	}
	c.logCall(ctx, op, params, status, elapsed, correlationID, logErr)
	observability.ObserveUpstreamCall(op, status, elapsed)

	if haveResp {
		return lastResp, nil
	}
	return Response{}, fmt.Errorf("call %s: %w", op, lastErr)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// attempt performs a single HTTP round trip bounded by the attempt timeout.
func (c *Client) attempt(ctx context.Context, endpoint string, params url.Values, correlationID string) (Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	do := func() (Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return Response{}, fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Response{}, fmt.Errorf("read response body: %w", err)
		}
		return Response{Status: resp.StatusCode, Body: body}, nil
	}

	if c.breaker == nil {
		return do()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := do()
		if err != nil {
			return nil, err
		}
		// 5xx counts as a breaker failure, but the response is still a result.
		if resp.Status >= 500 {
			return resp, fmt.Errorf("upstream status %d", resp.Status)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Response{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if resp, ok := result.(Response); ok {
			return resp, nil
		}
		return Response{}, err
	}
	return result.(Response), nil
}

// logCall emits the single audit record per logical operation: operation,
// status, elapsed milliseconds, correlation id, and the parameters sent.
// The API key is redacted from the logged parameters.
func (c *Client) logCall(ctx context.Context, op string, params url.Values, status int, elapsed time.Duration, correlationID string, err error) {
	logger := c.logger
	if l, ok := ctx.Value("logger").(*zap.Logger); ok && l != nil {
		logger = l
	}
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("operation", op),
		zap.Int("status", status),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("cid", correlationID),
		zap.String("params", redactParams(params)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Info("openweather_call", fields...)
}

func redactParams(params url.Values) string {
	redacted := url.Values{}
	for k, vs := range params {
		if k == "appid" {
			redacted.Set(k, "[redacted]")
			continue
		}
		redacted[k] = vs
	}
	return redacted.Encode()
}
