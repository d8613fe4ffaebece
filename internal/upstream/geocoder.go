package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// GeoCandidate is one direct-geocoding hit. The first hit is used to
// disambiguate a city/country pair; up to five feed search suggestions.
type GeoCandidate struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
}

// Geocode resolves a city/country pair to coordinates via the direct
// geocoding endpoint with limit=1. Failure is always soft: a missing API
// key, a transport error, a non-2xx status, or an empty result set all
// return nil, and the caller falls back to a free-text query. The result is
// intentionally not cached; it feeds into the cache key of the weather call
// that follows.
func (c *Client) Geocode(ctx context.Context, city, country, correlationID string) *GeoCandidate {
	if c.apiKey == "" {
		return nil
	}

	q := city
	if country != "" {
		q = city + "," + country
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", "1")
	params.Set("appid", c.apiKey)

	reqCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.geoBaseURL+"/direct", nil)
	if err != nil {
		return nil
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.debugGeocode(ctx, q, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.debugGeocode(ctx, q, nil)
		return nil
	}

	var candidates []GeoCandidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		c.debugGeocode(ctx, q, err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

func (c *Client) debugGeocode(ctx context.Context, q string, err error) {
	logger := c.logger
	if l, ok := ctx.Value("logger").(*zap.Logger); ok && l != nil {
		logger = l
	}
	if logger == nil {
		return
	}
	fields := []zap.Field{zap.String("q", q)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Debug("geocoding unavailable", fields...)
}
