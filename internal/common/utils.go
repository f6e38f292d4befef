package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseHeight parses a height in meters written as "XXm", e.g. "50m" or
// "67.5m". A bare number is accepted too.
func ParseHeight(s string) (float64, error) {
	v := strings.TrimSuffix(strings.TrimSpace(s), "m")
	h, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(h) || math.IsInf(h, 0) {
		return 0, fmt.Errorf("invalid height %q; expected a value like 50m", s)
	}
	if h <= 0 {
		return 0, fmt.Errorf("invalid height %q; must be positive", s)
	}
	return h, nil
}

var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseDate parses a request date as UTC. Date-only values are midnight of
// that day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q; expected YYYYMMDD, YYYY-MM-DD, YYYY-MM-DDTHH:MM or RFC3339", s)
}

// HasAny returns true if s contains any of the substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
