// Package forecast reduces the provider's multi-timestamp forecast list to
// one entry per calendar day.
package forecast

import (
	"encoding/json"
	"strings"
	"time"
)

// DateOf extracts the calendar-date portion of a provider timestamp string
// ("YYYY-MM-DD HH:MM:SS"). ok is false when the field is empty or the date
// part does not parse.
func DateOf(dtTxt string) (string, bool) {
	date, _, _ := strings.Cut(dtTxt, " ")
	if date == "" {
		return "", false
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", false
	}
	return date, true
}

// Compact scans the list in its original chronological order and keeps the
// first point seen for each distinct calendar date, stopping once maxDays
// dates have been kept. Points without a usable dt_txt are skipped and never
// counted. Input order is preserved.
func Compact(list []json.RawMessage, maxDays int) []json.RawMessage {
	kept := make([]json.RawMessage, 0, maxDays)
	if maxDays <= 0 {
		return kept
	}
	seen := make(map[string]struct{}, maxDays)
	for _, raw := range list {
		var point struct {
			DtTxt string `json:"dt_txt"`
		}
		if err := json.Unmarshal(raw, &point); err != nil {
			continue
		}
		date, ok := DateOf(point.DtTxt)
		if !ok {
			continue
		}
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		kept = append(kept, raw)
		if len(seen) >= maxDays {
			break
		}
	}
	return kept
}
