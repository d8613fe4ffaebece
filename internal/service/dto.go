package service

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/openwx/weather-gateway/internal/forecast"
	"github.com/openwx/weather-gateway/internal/location"
	"github.com/openwx/weather-gateway/internal/upstream"
)

// The v1 surface decouples the public contract from the provider's schema:
// a stable, reduced shape instead of the raw payload, and a uniform error
// envelope carrying the correlation id.

// CurrentDTO is the v1 current-weather response shape.
type CurrentDTO struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	TempC     float64 `json:"tempC"`
	Humidity  int     `json:"humidity"`
	WindMs    float64 `json:"windMs"`
	Condition string  `json:"condition"`
	Icon      string  `json:"icon"`
}

// ForecastDTO is the v1 forecast response shape.
type ForecastDTO struct {
	City CityDTO  `json:"city"`
	Days []DayDTO `json:"days"`
}

// CityDTO identifies the forecast location.
type CityDTO struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// DayDTO is one calendar day of the compacted forecast.
type DayDTO struct {
	Date      string  `json:"date"`
	TempC     float64 `json:"tempC"`
	Condition string  `json:"condition"`
	Icon      string  `json:"icon"`
}

// ErrorEnvelope is the v1 error shape.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the status code, a human-readable message, and the
// correlation id of the failed request.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Cid     string `json:"cid"`
}

// CurrentDTOResult runs the current-weather lookup and reshapes the payload
// into the v1 DTO. Failures become the v1 error envelope with the upstream
// status preserved.
func (s *Service) CurrentDTOResult(ctx context.Context, q location.Query, correlationID string) (Result, error) {
	res, err := s.Current(ctx, q, correlationID)
	if err != nil {
		return Result{}, err
	}
	if res.Status != http.StatusOK {
		return EnvelopeResult(res.Status, "Unable to fetch weather data", correlationID), nil
	}

	var payload upstream.CurrentPayload
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return EnvelopeResult(http.StatusBadGateway, "Unable to fetch weather data", correlationID), nil
	}

	dto := CurrentDTO{
		Name:     payload.Name,
		Country:  payload.Sys.Country,
		Lat:      payload.Coord.Lat,
		Lon:      payload.Coord.Lon,
		TempC:    payload.Main.Temp,
		Humidity: payload.Main.Humidity,
		WindMs:   payload.Wind.Speed,
	}
	if len(payload.Weather) > 0 {
		dto.Condition = payload.Weather[0].Description
		dto.Icon = payload.Weather[0].Icon
	}
	body, _ := json.Marshal(dto)
	return Result{Status: http.StatusOK, Body: body}, nil
}

// ForecastDTOResult runs the forecast lookup and reshapes the compacted
// payload into the v1 DTO.
func (s *Service) ForecastDTOResult(ctx context.Context, q location.Query, days int, correlationID string) (Result, error) {
	res, err := s.Forecast(ctx, q, days, correlationID)
	if err != nil {
		return Result{}, err
	}
	if res.Status != http.StatusOK {
		return EnvelopeResult(res.Status, "Unable to fetch forecast data", correlationID), nil
	}

	var payload upstream.ForecastPayload
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return EnvelopeResult(http.StatusBadGateway, "Unable to fetch forecast data", correlationID), nil
	}

	dto := ForecastDTO{
		City: CityDTO{
			Name:    payload.City.Name,
			Country: payload.City.Country,
			Lat:     payload.City.Coord.Lat,
			Lon:     payload.City.Coord.Lon,
		},
		Days: []DayDTO{},
	}
	// The list is already one point per date; the seen guard keeps the
	// reshaping idempotent regardless.
	seen := make(map[string]struct{}, days)
	for _, point := range payload.List {
		date, ok := forecast.DateOf(point.DtTxt)
		if !ok {
			continue
		}
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		day := DayDTO{Date: date, TempC: point.Main.Temp}
		if len(point.Weather) > 0 {
			day.Condition = point.Weather[0].Description
			day.Icon = point.Weather[0].Icon
		}
		dto.Days = append(dto.Days, day)
		if len(seen) >= days {
			break
		}
	}
	body, _ := json.Marshal(dto)
	return Result{Status: http.StatusOK, Body: body}, nil
}

// EnvelopeResult builds a v1 error envelope result.
func EnvelopeResult(status int, message, correlationID string) Result {
	body, _ := json.Marshal(ErrorEnvelope{Error: ErrorBody{
		Code:    status,
		Message: message,
		Cid:     correlationID,
	}})
	return Result{Status: status, Body: body}
}
