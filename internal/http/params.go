package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/openwx/weather-gateway/internal/location"
)

var validate = validator.New()

// searchParams is the validated input of GET /weather/search.
type searchParams struct {
	Q       string `validate:"required,min=3,max=255"`
	Country string `validate:"omitempty,max=255"`
}

// parseLocationQuery reads id/lat/lon/city/country from the query string
// into a location.Query. Malformed numerics are client errors; range and
// presence invariants are checked by Query.Validate.
func parseLocationQuery(r *http.Request) (location.Query, error) {
	values := r.URL.Query()
	var q location.Query

	if raw := values.Get("id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("id must be an integer")
		}
		q.ID = &id
	}
	if raw := values.Get("lat"); raw != "" {
		lat, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, fmt.Errorf("lat must be a number")
		}
		q.Lat = &lat
	}
	if raw := values.Get("lon"); raw != "" {
		lon, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, fmt.Errorf("lon must be a number")
		}
		q.Lon = &lon
	}
	q.City = values.Get("city")
	q.Country = values.Get("country")

	if err := q.Validate(); err != nil {
		return q, validationMessage(err)
	}
	return q, nil
}

// parseDays reads the forecast day count, defaulting to 3 and bounding it
// to [1,5].
func parseDays(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 3, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("days must be an integer")
	}
	if days < 1 || days > 5 {
		return 0, fmt.Errorf("days must be between 1 and 5")
	}
	return days, nil
}

// parseSearchParams reads and validates the q/country pair for city search.
func parseSearchParams(r *http.Request) (searchParams, error) {
	p := searchParams{
		Q:       r.URL.Query().Get("q"),
		Country: r.URL.Query().Get("country"),
	}
	if err := validate.Struct(p); err != nil {
		return p, validationMessage(err)
	}
	return p, nil
}

// validationMessage converts validator errors into stable, user-facing
// messages; location.ErrCityRequired is already user-facing.
func validationMessage(err error) error {
	if errors.Is(err, location.ErrCityRequired) {
		return err
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%s is required", paramName(fe.Field()))
		case "min":
			return fmt.Errorf("%s must be at least %s characters", paramName(fe.Field()), fe.Param())
		case "max":
			return fmt.Errorf("%s must be at most %s characters", paramName(fe.Field()), fe.Param())
		case "gte", "lte":
			return fmt.Errorf("%s is out of range", paramName(fe.Field()))
		}
		return fmt.Errorf("%s is invalid", paramName(fe.Field()))
	}
	return err
}

func paramName(field string) string {
	switch field {
	case "Q":
		return "q"
	case "Lat":
		return "lat"
	case "Lon":
		return "lon"
	case "City":
		return "city"
	case "Country":
		return "country"
	default:
		return field
	}
}
