// Package geocode turns free-form addresses into coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/wind-timeseries/internal/common"
	"github.com/i474232898/wind-timeseries/internal/wind"
)

// ErrNotConfigured is returned when address lookups are requested without an
// API key.
var ErrNotConfigured = errors.New("geocoding is not configured")

// Resolver resolves an address to a latitude/longitude pair.
type Resolver interface {
	Resolve(ctx context.Context, address string) (wind.LatLon, error)
}

// Google resolves addresses with the Google geocoding API.
type Google struct {
	mu  sync.Mutex // geocoder keeps its key in a package variable
	key string
}

// NewGoogle returns a Resolver backed by the Google geocoding API. An empty
// key yields a resolver that always fails with ErrNotConfigured.
func NewGoogle(key string) *Google {
	return &Google{key: key}
}

func (g *Google) Resolve(ctx context.Context, address string) (wind.LatLon, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return wind.LatLon{}, fmt.Errorf("%w: empty address", wind.ErrValidation)
	}
	if g.key == "" {
		return wind.LatLon{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return wind.LatLon{}, err
	}

	g.mu.Lock()
	geocoder.ApiKey = g.key
	loc, err := geocoder.Geocoding(geocoder.Address{Street: address})
	g.mu.Unlock()
	if err != nil {
		return wind.LatLon{}, classify(address, err)
	}
	return wind.LatLon{Lat: loc.Latitude, Lon: loc.Longitude}, nil
}

func classify(address string, err error) error {
	msg := err.Error()
	switch {
	case common.HasAny(msg, "ZERO_RESULTS", "INVALID_REQUEST"):
		return fmt.Errorf("%w: address %q could not be resolved", wind.ErrValidation, address)
	case common.HasAny(msg, "REQUEST_DENIED"):
		return fmt.Errorf("geocode: %w: %s", wind.ErrUnauthorized, msg)
	}
	return wind.ResourceError("geocode", err)
}

// Static resolves addresses from a fixed table. Lookups are case-insensitive.
type Static map[string]wind.LatLon

func (s Static) Resolve(_ context.Context, address string) (wind.LatLon, error) {
	if ll, ok := s[strings.ToLower(strings.TrimSpace(address))]; ok {
		return ll, nil
	}
	return wind.LatLon{}, fmt.Errorf("%w: address %q could not be resolved", wind.ErrValidation, address)
}
