package store

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/i474232898/wind-timeseries/internal/wind"
)

var (
	// ErrNotFound is returned when no cached result exists for a key.
	ErrNotFound = errors.New("no cached result for request")
)

// MemoryStore is a concurrency-safe in-memory cache of finalized results.
type MemoryStore struct {
	series *expirable.LRU[string, wind.Series]
	roses  *expirable.LRU[string, wind.Windrose]
}

// NewMemoryStore creates a new MemoryStore holding up to maxEntries results
// of each kind for maxAge. If maxEntries is <= 0 it defaults to 256.
func NewMemoryStore(maxEntries int, maxAge time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryStore{
		series: expirable.NewLRU[string, wind.Series](maxEntries, nil, maxAge),
		roses:  expirable.NewLRU[string, wind.Windrose](maxEntries, nil, maxAge),
	}
}

// SaveSeries stores a finalized series under key.
func (s *MemoryStore) SaveSeries(key string, series wind.Series) {
	s.series.Add(key, series)
}

// GetSeries returns the series cached under key.
func (s *MemoryStore) GetSeries(key string) (wind.Series, error) {
	v, ok := s.series.Get(key)
	if !ok {
		return wind.Series{}, ErrNotFound
	}
	return v, nil
}

// SaveWindrose stores a windrose under key.
func (s *MemoryStore) SaveWindrose(key string, w wind.Windrose) {
	s.roses.Add(key, w)
}

// GetWindrose returns the windrose cached under key.
func (s *MemoryStore) GetWindrose(key string) (wind.Windrose, error) {
	v, ok := s.roses.Get(key)
	if !ok {
		return wind.Windrose{}, ErrNotFound
	}
	return v, nil
}

// Len returns the number of cached results.
func (s *MemoryStore) Len() int {
	return s.series.Len() + s.roses.Len()
}

// Purge drops every cached result. Results computed against a previous
// dataset context must not outlive a refresh.
func (s *MemoryStore) Purge() {
	s.series.Purge()
	s.roses.Purge()
}
