package common

import (
	"testing"
	"time"
)

func TestParseHeight(t *testing.T) {
	good := map[string]float64{"50m": 50, "67.5m": 67.5, " 100m ": 100, "80": 80}
	for in, want := range good {
		got, err := ParseHeight(in)
		if err != nil || got != want {
			t.Errorf("ParseHeight(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "m", "fifty", "-10m", "0m", "NaNm", "50mm"} {
		if _, err := ParseHeight(in); err == nil {
			t.Errorf("ParseHeight(%q) accepted", in)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"20100302":                  time.Date(2010, 3, 2, 0, 0, 0, 0, time.UTC),
		"2010-03-02":                time.Date(2010, 3, 2, 0, 0, 0, 0, time.UTC),
		"2010-03-02T05:00":          time.Date(2010, 3, 2, 5, 0, 0, 0, time.UTC),
		"2010-03-02T05:00:00Z":      time.Date(2010, 3, 2, 5, 0, 0, 0, time.UTC),
		"2010-03-02T07:00:00+02:00": time.Date(2010, 3, 2, 5, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseDate(in)
		if err != nil || !got.Equal(want) || got.Location() != time.UTC {
			t.Errorf("ParseDate(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "2010/03/02", "yesterday", "20101302"} {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("ParseDate(%q) accepted", in)
		}
	}
}

func TestHasAny(t *testing.T) {
	if !HasAny("connection refused", "timeout", "refused") {
		t.Fatal("expected match")
	}
	if HasAny("ok") {
		t.Fatal("no substrings should not match")
	}
}
