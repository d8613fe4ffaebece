package upstream

// Typed views of the provider payloads, covering only the fields the
// versioned DTO surface reshapes. Raw bodies are forwarded as-is elsewhere.

// CurrentPayload is the subset of the current-weather response used for the
// v1 DTO.
type CurrentPayload struct {
	Name  string `json:"name"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []WeatherCondition `json:"weather"`
	Sys     struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// WeatherCondition is one entry of the provider's weather array.
type WeatherCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// ForecastPayload is the subset of the 5-day/3-hour forecast response used
// for the v1 DTO.
type ForecastPayload struct {
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
		Coord   struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
	} `json:"city"`
	List []ForecastPoint `json:"list"`
}

// ForecastPoint is one forecast timestamp. DtTxt carries the provider's
// "YYYY-MM-DD HH:MM:SS" timestamp string.
type ForecastPoint struct {
	DtTxt string `json:"dt_txt"`
	Main  struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []WeatherCondition `json:"weather"`
}
