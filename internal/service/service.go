// Package service orchestrates weather lookups: it resolves the location
// input, routes the upstream call by id, coordinates, geocoding, or
// free-text query, memoizes responses, and converts every upstream failure
// into a structured result. Nothing here raises an unhandled fault for a
// provider problem; the only error surfaced to handlers is the missing
// credential.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openwx/weather-gateway/internal/cache"
	"github.com/openwx/weather-gateway/internal/forecast"
	"github.com/openwx/weather-gateway/internal/location"
	"github.com/openwx/weather-gateway/internal/upstream"
)

// ErrNoAPIKey marks the server-configuration failure mode: the service is
// running without a provider credential. Distinct from client input errors.
var ErrNoAPIKey = errors.New("server configuration error: OPENWEATHER_API_KEY is not set")

// Result is a ready-to-serve response: HTTP status plus JSON body. The
// correlation header is added by the HTTP layer.
type Result struct {
	Status int
	Body   json.RawMessage
}

// TTLs configures how long each operation's responses stay cached. Current
// conditions go stale fastest; city search results barely change.
type TTLs struct {
	Current  time.Duration
	Forecast time.Duration
	Search   time.Duration
}

// DefaultTTLs returns the production cache windows.
func DefaultTTLs() TTLs {
	return TTLs{
		Current:  2 * time.Minute,
		Forecast: 5 * time.Minute,
		Search:   6 * time.Hour,
	}
}

// Service composes the resolver, geocoder, upstream client, and response
// cache behind the endpoint operations.
type Service struct {
	client *upstream.Client
	cache  *cache.ResponseCache
	logger *zap.Logger
	ttls   TTLs
}

// New creates a Service.
func New(client *upstream.Client, responseCache *cache.ResponseCache, logger *zap.Logger, ttls TTLs) *Service {
	if ttls.Current <= 0 {
		ttls.Current = DefaultTTLs().Current
	}
	if ttls.Forecast <= 0 {
		ttls.Forecast = DefaultTTLs().Forecast
	}
	if ttls.Search <= 0 {
		ttls.Search = DefaultTTLs().Search
	}
	return &Service{client: client, cache: responseCache, logger: logger, ttls: ttls}
}

// Ready reports whether the provider credential is configured. Used by the
// health endpoint.
func (s *Service) Ready() bool {
	return s.client.HasAPIKey()
}

// Current returns the provider's current-weather payload for the query.
// The returned error is non-nil only for the missing-credential case.
func (s *Service) Current(ctx context.Context, q location.Query, correlationID string) (Result, error) {
	if !s.client.HasAPIKey() {
		return Result{}, ErrNoAPIKey
	}

	params := s.resolveParams(ctx, q, correlationID)
	key := cache.Key(upstream.OpCurrent, params)
	resp, _, err := s.cache.GetOrCompute(ctx, key, s.ttls.Current, func() (upstream.Response, error) {
		return s.client.Call(ctx, upstream.OpCurrent, params, correlationID)
	})
	if err != nil {
		return errorResult(http.StatusBadGateway, "Unable to fetch weather data"), nil
	}
	if !resp.OK() {
		return forwardFailure(resp, http.StatusBadGateway, "Unable to fetch weather data"), nil
	}
	return Result{Status: http.StatusOK, Body: resp.Body}, nil
}

// Forecast returns the provider's forecast payload with the list compacted
// to at most days calendar-distinct entries.
func (s *Service) Forecast(ctx context.Context, q location.Query, days int, correlationID string) (Result, error) {
	if !s.client.HasAPIKey() {
		return Result{}, ErrNoAPIKey
	}

	params := s.resolveParams(ctx, q, correlationID)
	key := cache.Key(upstream.OpForecast, params, strconv.Itoa(days))
	resp, _, err := s.cache.GetOrCompute(ctx, key, s.ttls.Forecast, func() (upstream.Response, error) {
		return s.client.Call(ctx, upstream.OpForecast, params, correlationID)
	})
	if err != nil {
		return errorResult(http.StatusBadGateway, "Unable to fetch forecast data"), nil
	}
	if !resp.OK() {
		return forwardFailure(resp, http.StatusBadGateway, "Unable to fetch forecast data"), nil
	}

	body, err := compactForecastBody(resp.Body, days)
	if err != nil {
		// Pass the payload through untouched rather than failing the request.
		if s.logger != nil {
			s.logger.Warn("forecast payload not compactable", zap.Error(err))
		}
		body = resp.Body
	}
	return Result{Status: http.StatusOK, Body: body}, nil
}

// Search returns up to five geocoding suggestions for a free-text query,
// projected down to {name, lat, lon, country, state}.
func (s *Service) Search(ctx context.Context, query, country, correlationID string) (Result, error) {
	if !s.client.HasAPIKey() {
		return Result{}, ErrNoAPIKey
	}

	q := query
	if code := location.NormalizeCountry(country); code != "" {
		q = query + "," + code
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", "5")
	params.Set("appid", s.client.APIKey())

	key := cache.Key(upstream.OpSearch, params)
	resp, _, err := s.cache.GetOrCompute(ctx, key, s.ttls.Search, func() (upstream.Response, error) {
		return s.client.Call(ctx, upstream.OpSearch, params, correlationID)
	})
	if err != nil {
		return errorResult(http.StatusNotFound, "No cities found"), nil
	}
	if !resp.OK() {
		return forwardFailure(resp, http.StatusNotFound, "No cities found"), nil
	}

	var candidates []upstream.GeoCandidate
	if err := json.Unmarshal(resp.Body, &candidates); err != nil {
		candidates = nil
	}
	if candidates == nil {
		candidates = []upstream.GeoCandidate{}
	}
	body, err := json.Marshal(candidates)
	if err != nil {
		return errorResult(http.StatusNotFound, "No cities found"), nil
	}
	return Result{Status: http.StatusOK, Body: body}, nil
}

// resolveParams builds the upstream-ready parameter set. Precedence: explicit
// numeric id, then an explicit coordinate pair, then geocoded coordinates for
// the resolved city, then the raw free-text query as a last resort.
func (s *Service) resolveParams(ctx context.Context, q location.Query, correlationID string) url.Values {
	city := location.ResolveCity(q.City, q.Country)
	country := location.NormalizeCountry(q.Country)

	params := url.Values{}
	params.Set("appid", s.client.APIKey())
	params.Set("units", "metric")

	switch {
	case q.ID != nil:
		params.Set("id", strconv.Itoa(*q.ID))
	case q.Lat != nil && q.Lon != nil:
		params.Set("lat", formatCoord(*q.Lat))
		params.Set("lon", formatCoord(*q.Lon))
	default:
		if geo := s.client.Geocode(ctx, city, country, correlationID); geo != nil {
			params.Set("lat", formatCoord(geo.Lat))
			params.Set("lon", formatCoord(geo.Lon))
		} else if country != "" {
			params.Set("q", city+","+country)
		} else {
			params.Set("q", city)
		}
	}
	return params
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// compactForecastBody replaces the payload's list with its calendar-day
// compaction, leaving every other provider field untouched.
func compactForecastBody(body []byte, days int) ([]byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	var list []json.RawMessage
	if raw, ok := payload["list"]; ok {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
	}
	kept, err := json.Marshal(forecast.Compact(list, days))
	if err != nil {
		return nil, err
	}
	payload["list"] = kept
	return json.Marshal(payload)
}

// forwardFailure forwards a non-2xx upstream response: its status and body
// when present, otherwise the synthesized default. A body of null or an
// empty container carries no information and gets the default too.
func forwardFailure(resp upstream.Response, defaultStatus int, message string) Result {
	status := resp.Status
	if status == 0 {
		status = defaultStatus
	}
	if len(resp.Body) > 0 && json.Valid(resp.Body) && !emptyJSON(resp.Body) {
		return Result{Status: status, Body: resp.Body}
	}
	return errorResult(status, message)
}

func emptyJSON(b []byte) bool {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case map[string]interface{}:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	}
	return false
}

func errorResult(status int, message string) Result {
	body, _ := json.Marshal(map[string]string{"error": message})
	return Result{Status: status, Body: body}
}
