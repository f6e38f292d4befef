// Package sources provides GriddedDataSource implementations.
package sources

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/i474232898/wind-timeseries/internal/wind"
)

// Memory is an in-process gridded dataset on a regular latitude/longitude
// grid. X follows latitude and Y follows longitude.
type Memory struct {
	lat0, lon0, step float64
	nx, ny           int
	times            []time.Time

	mu   sync.RWMutex
	data map[string][]float64 // dataset name -> [t][x][y]
}

// NewMemory returns an empty grid of nx x ny cells whose cell (0, 0) sits at
// (lat0, lon0).
func NewMemory(lat0, lon0, step float64, nx, ny int, times []time.Time) *Memory {
	return &Memory{
		lat0:  lat0,
		lon0:  lon0,
		step:  step,
		nx:    nx,
		ny:    ny,
		times: slices.Clone(times),
		data:  make(map[string][]float64),
	}
}

// Set fills dataset v at height with fn(t, idx).
func (m *Memory) Set(v wind.Variable, height int, fn func(t int, idx wind.GridIndex) float64) {
	vals := make([]float64, len(m.times)*m.nx*m.ny)
	for t := range m.times {
		for x := 0; x < m.nx; x++ {
			for y := 0; y < m.ny; y++ {
				vals[m.offset(t, x, y)] = fn(t, wind.GridIndex{X: x, Y: y})
			}
		}
	}
	m.mu.Lock()
	m.data[v.DatasetName(height)] = vals
	m.mu.Unlock()
}

func (m *Memory) offset(t, x, y int) int {
	return (t*m.nx+x)*m.ny + y
}

func (m *Memory) GridIndex(_ context.Context, lat, lon float64) (wind.GridIndex, error) {
	return wind.GridIndex{
		X: int(math.Round((lat - m.lat0) / m.step)),
		Y: int(math.Round((lon - m.lon0) / m.step)),
	}, nil
}

func (m *Memory) Coordinates(_ context.Context, idx []wind.GridIndex) ([]wind.LatLon, error) {
	out := make([]wind.LatLon, len(idx))
	for i, g := range idx {
		if !m.contains(g) {
			return nil, wind.DataRangeErrorf("cell (%d, %d) is outside the grid", g.X, g.Y)
		}
		out[i] = wind.LatLon{Lat: m.lat0 + float64(g.X)*m.step, Lon: m.lon0 + float64(g.Y)*m.step}
	}
	return out, nil
}

func (m *Memory) Bounds(context.Context) (wind.GridBounds, error) {
	return wind.GridBounds{X1: m.nx, Y1: m.ny}, nil
}

func (m *Memory) Heights(_ context.Context, v wind.Variable) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hs []int
	for name := range m.data {
		if dv, h, ok := wind.ParseDatasetName(name); ok && dv == v {
			hs = append(hs, h)
		}
	}
	slices.Sort(hs)
	return hs, nil
}

func (m *Memory) Timestamps(context.Context) ([]time.Time, error) {
	return slices.Clone(m.times), nil
}

func (m *Memory) Slab(_ context.Context, v wind.Variable, height int, idx wind.GridIndex, t0, t1 int) ([]float64, error) {
	m.mu.RLock()
	vals, ok := m.data[v.DatasetName(height)]
	m.mu.RUnlock()
	if !ok {
		return nil, wind.DataRangeErrorf("no dataset %s", v.DatasetName(height))
	}
	if !m.contains(idx) {
		return nil, wind.DataRangeErrorf("cell (%d, %d) is outside the grid", idx.X, idx.Y)
	}
	if t0 < 0 || t1 >= len(m.times) || t0 > t1 {
		return nil, fmt.Errorf("time range %d..%d outside 0..%d", t0, t1, len(m.times)-1)
	}
	out := make([]float64, 0, t1-t0+1)
	for t := t0; t <= t1; t++ {
		out = append(out, vals[m.offset(t, idx.X, idx.Y)])
	}
	return out, nil
}

func (m *Memory) contains(g wind.GridIndex) bool {
	return g.X >= 0 && g.X < m.nx && g.Y >= 0 && g.Y < m.ny
}
