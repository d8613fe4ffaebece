package location

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	validate.RegisterStructValidation(queryStructLevel, Query{})
}

// ErrCityRequired is returned when a query carries neither an id, a full
// coordinate pair, nor a city.
var ErrCityRequired = errors.New("city is required unless id or lat+lon are given")

// Query is the parsed location input for a weather lookup. At least one of
// ID, the Lat/Lon pair, or City must be present. Nil pointers mean the
// parameter was absent from the request.
type Query struct {
	ID      *int     `validate:"omitempty"`
	Lat     *float64 `validate:"omitempty,gte=-90,lte=90"`
	Lon     *float64 `validate:"omitempty,gte=-180,lte=180"`
	City    string   `validate:"omitempty,max=255"`
	Country string   `validate:"omitempty,max=255"`
}

func queryStructLevel(sl validator.StructLevel) {
	q := sl.Current().Interface().(Query)
	if q.ID == nil && (q.Lat == nil || q.Lon == nil) && strings.TrimSpace(q.City) == "" {
		sl.ReportError(q.City, "City", "city", "required_without", "")
	}
}

// Validate checks the query invariants: coordinate ranges and the presence
// of at least one usable location parameter.
func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "required_without" {
					return ErrCityRequired
				}
			}
		}
		return err
	}
	return nil
}
