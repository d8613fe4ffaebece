// Package http exposes the weather lookup pipeline over HTTP: the raw
// provider-payload endpoints under /weather, the v1 DTO surface, and the
// health and metrics endpoints. Validation failures short-circuit with a
// client error before any network activity.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openwx/weather-gateway/internal/observability"
	"github.com/openwx/weather-gateway/internal/service"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc       *service.Service
	logger    *zap.Logger
	cachePing func() error // set when the cache backend is memcached
}

// NewHandler returns a new Handler. cachePing may be nil.
func NewHandler(svc *service.Service, logger *zap.Logger, cachePing func() error) *Handler {
	return &Handler{svc: svc, logger: logger, cachePing: cachePing}
}

// NewRouter wires all routes. The limiter applies to the public weather
// endpoints only; health and metrics stay unthrottled.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	weather := router.PathPrefix("/weather").Subrouter()
	weather.Use(RateLimitMiddleware(limiter))
	weather.HandleFunc("/current", h.GetCurrent).Methods("GET")
	weather.HandleFunc("/forecast", h.GetForecast).Methods("GET")
	weather.HandleFunc("/search", h.GetSearch).Methods("GET")

	v1 := router.PathPrefix("/v1/weather").Subrouter()
	v1.Use(RateLimitMiddleware(limiter))
	v1.HandleFunc("/current", h.GetCurrentV1).Methods("GET")
	v1.HandleFunc("/forecast", h.GetForecastV1).Methods("GET")

	return router
}

// GetCurrent handles GET /weather/current.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	q, err := parseLocationQuery(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.Current(r.Context(), q, correlationID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeResult(w, res)
}

// GetForecast handles GET /weather/forecast.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q, err := parseLocationQuery(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	days, err := parseDays(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.Forecast(r.Context(), q, days, correlationID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeResult(w, res)
}

// GetSearch handles GET /weather/search.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	p, err := parseSearchParams(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.Search(r.Context(), p.Q, p.Country, correlationID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeResult(w, res)
}

// GetCurrentV1 handles GET /v1/weather/current.
func (h *Handler) GetCurrentV1(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	q, err := parseLocationQuery(r)
	if err != nil {
		writeResult(w, service.EnvelopeResult(http.StatusUnprocessableEntity, err.Error(), cid))
		return
	}
	res, err := h.svc.CurrentDTOResult(r.Context(), q, cid)
	if err != nil {
		writeResult(w, service.EnvelopeResult(http.StatusInternalServerError, err.Error(), cid))
		return
	}
	writeResult(w, res)
}

// GetForecastV1 handles GET /v1/weather/forecast.
func (h *Handler) GetForecastV1(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	q, err := parseLocationQuery(r)
	if err != nil {
		writeResult(w, service.EnvelopeResult(http.StatusUnprocessableEntity, err.Error(), cid))
		return
	}
	days, err := parseDays(r)
	if err != nil {
		writeResult(w, service.EnvelopeResult(http.StatusUnprocessableEntity, err.Error(), cid))
		return
	}
	res, err := h.svc.ForecastDTOResult(r.Context(), q, days, cid)
	if err != nil {
		writeResult(w, service.EnvelopeResult(http.StatusInternalServerError, err.Error(), cid))
		return
	}
	writeResult(w, res)
}

// GetHealth handles GET /health. 200 iff the provider credential is
// configured; reports cache reachability when a memcached backend is in use.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ok := h.svc.Ready()
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := map[string]interface{}{
		"ok":   ok,
		"time": time.Now().UTC().Format(time.RFC3339),
	}
	if h.cachePing != nil {
		if h.cachePing() == nil {
			resp["cache"] = "healthy"
		} else {
			resp["cache"] = "unhealthy"
		}
	}
	writeJSON(w, status, resp)
}

// correlationID pulls the id placed in context by CorrelationIDMiddleware.
func correlationID(r *http.Request) string {
	if v := r.Context().Value("correlation_id"); v != nil {
		if cid, ok := v.(string); ok {
			return cid
		}
	}
	return ""
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult writes a service result as-is; the body is already JSON.
func writeResult(w http.ResponseWriter, res service.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}

// writeError writes the legacy error body {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps orchestrator errors: a missing credential is a
// server-configuration error, anything else an internal one.
func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrNoAPIKey) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
