// Package location resolves free-text city/country input into the effective
// query string sent upstream. Country names are normalized to ISO 3166-1
// alpha-2 codes; when the city field is empty or just repeats the country,
// the country's capital is substituted so the query still hits something
// useful instead of an upstream miss.
package location

import "strings"

// countryAliases maps lower-cased country names and common aliases to
// ISO 3166-1 alpha-2 codes. Lookup is done on the trimmed, lower-cased input.
var countryAliases = map[string]string{
	"turkey":         "TR",
	"türkiye":        "TR",
	"azerbaijan":     "AZ",
	"azərbaycan":     "AZ",
	"united states":  "US",
	"usa":            "US",
	"uk":             "GB",
	"united kingdom": "GB",
}

// capitals maps country codes to their capital city, used as a fallback when
// the city input is missing or uninformative.
var capitals = map[string]string{
	"AZ": "Baku",
	"TR": "Ankara",
	"US": "Washington",
	"GB": "London",
	"DE": "Berlin",
	"FR": "Paris",
	"IT": "Rome",
	"ES": "Madrid",
	"RU": "Moscow",
	"CN": "Beijing",
	"JP": "Tokyo",
	"IN": "New Delhi",
}

// NormalizeCountry maps a free-text country name to a two-letter code.
// Empty input returns "". Unknown input that already looks like a two-letter
// code is upper-cased; anything else is passed through unchanged, since the
// upstream provider may still accept a free-text country name.
func NormalizeCountry(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	if code, ok := countryAliases[key]; ok {
		return code
	}
	if isAlpha2(key) {
		return strings.ToUpper(key)
	}
	return raw
}

func isAlpha2(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// CapitalFor returns the capital city for a country code. ok is false for
// codes outside the table; callers fall back to whatever city they had.
func CapitalFor(code string) (string, bool) {
	capital, ok := capitals[code]
	return capital, ok
}

// ResolveCity decides the effective city to query for a raw city/country
// pair. Users often type the country name into the city field when they mean
// "somewhere in this country"; in that case, and when the city is empty, the
// country's capital is substituted.
func ResolveCity(city, country string) string {
	if country == "" {
		return city
	}

	code := NormalizeCountry(country)

	if strings.TrimSpace(city) == "" {
		if capital, ok := CapitalFor(code); ok {
			return capital
		}
		return city
	}

	normCity := strings.ToLower(strings.TrimSpace(city))
	normCountry := strings.ToLower(strings.TrimSpace(country))
	if normCity == normCountry || strings.EqualFold(normCity, code) || NormalizeCountry(normCity) == code {
		if capital, ok := CapitalFor(code); ok {
			return capital
		}
	}

	return city
}
