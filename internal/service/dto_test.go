package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openwx/weather-gateway/internal/location"
)

func TestCurrentDTOResult_Shape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"name":"Baku",
			"coord":{"lat":40.37,"lon":49.89},
			"main":{"temp":21.4,"humidity":55,"pressure":1012},
			"wind":{"speed":4.2,"deg":180},
			"weather":[{"main":"Clear","description":"clear sky","icon":"01d"}],
			"sys":{"country":"AZ","sunrise":1}
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := newTestService("key", srv.URL, srv.URL)
	res, err := svc.CurrentDTOResult(context.Background(), location.Query{ID: intPtr(1)}, "cid")
	if err != nil {
		t.Fatalf("CurrentDTOResult() error = %v", err)
	}
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d", res.Status)
	}

	var dto CurrentDTO
	if err := json.Unmarshal(res.Body, &dto); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	want := CurrentDTO{
		Name: "Baku", Country: "AZ", Lat: 40.37, Lon: 49.89,
		TempC: 21.4, Humidity: 55, WindMs: 4.2,
		Condition: "clear sky", Icon: "01d",
	}
	if dto != want {
		t.Errorf("dto = %+v, want %+v", dto, want)
	}

	// The raw provider fields must not leak through the reduced shape.
	var raw map[string]interface{}
	_ = json.Unmarshal(res.Body, &raw)
	for _, field := range []string{"coord", "main", "wind", "sys", "weather"} {
		if _, leaked := raw[field]; leaked {
			t.Errorf("provider field %q leaked into the dto", field)
		}
	}
}

func TestCurrentDTOResult_FailureEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := newTestService("key", srv.URL, srv.URL)
	res, err := svc.CurrentDTOResult(context.Background(), location.Query{ID: intPtr(1)}, "cid-7")
	if err != nil {
		t.Fatalf("CurrentDTOResult() error = %v", err)
	}
	if res.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.Status)
	}

	var envelope ErrorEnvelope
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if envelope.Error.Code != http.StatusNotFound {
		t.Errorf("error.code = %d, want 404", envelope.Error.Code)
	}
	if envelope.Error.Message != "Unable to fetch weather data" {
		t.Errorf("error.message = %q", envelope.Error.Message)
	}
	if envelope.Error.Cid != "cid-7" {
		t.Errorf("error.cid = %q, want cid-7", envelope.Error.Cid)
	}
}

func TestForecastDTOResult_Shape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(forecastBody([]string{"2026-09-01", "2026-09-02", "2026-09-03", "2026-09-04"}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := newTestService("key", srv.URL, srv.URL)
	res, err := svc.ForecastDTOResult(context.Background(), location.Query{ID: intPtr(1)}, 3, "cid")
	if err != nil {
		t.Fatalf("ForecastDTOResult() error = %v", err)
	}
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d", res.Status)
	}

	var dto ForecastDTO
	if err := json.Unmarshal(res.Body, &dto); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if dto.City.Name != "Baku" || dto.City.Country != "AZ" {
		t.Errorf("city = %+v", dto.City)
	}
	if len(dto.Days) != 3 {
		t.Fatalf("days = %d, want 3", len(dto.Days))
	}
	first := DayDTO{Date: "2026-09-01", TempC: 20.5, Condition: "clear sky", Icon: "01d"}
	if dto.Days[0] != first {
		t.Errorf("days[0] = %+v, want %+v", dto.Days[0], first)
	}
}

func TestEnvelopeResult(t *testing.T) {
	res := EnvelopeResult(http.StatusBadGateway, "Unable to fetch weather data", "cid-1")
	if res.Status != http.StatusBadGateway {
		t.Errorf("status = %d", res.Status)
	}
	want := `{"error":{"code":502,"message":"Unable to fetch weather data","cid":"cid-1"}}`
	if string(res.Body) != want {
		t.Errorf("body = %s, want %s", res.Body, want)
	}
}
