package wind

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/i474232898/wind-timeseries/internal/geo"
)

const (
	// DefaultWindowRadius gives a 7x7 candidate window.
	DefaultWindowRadius = 3
	DefaultCellCount    = 4
)

// GridLocator finds the grid cells closest to a query point.
type GridLocator struct {
	source GriddedDataSource
	// equal-area projection used for offsets and distances
	proj *geo.Projection
}

func NewGridLocator(source GriddedDataSource, proj *geo.Projection) *GridLocator {
	return &GridLocator{source: source, proj: proj}
}

// ValidateCellCount rejects result counts other than 1, 4 or 16.
func ValidateCellCount(count int) error {
	switch count {
	case 1, 4, 16:
		return nil
	}
	return validationErrorf("cell count must be one of 1, 4, 16, got %d", count)
}

// ValidateLocation rejects impossible coordinates.
func ValidateLocation(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return validationErrorf("lat must be within [-90, 90], got %v", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return validationErrorf("lon must be within [-180, 180], got %v", lon)
	}
	return nil
}

// Locate returns up to count cells of the (2*radius+1)^2 window around
// (lat, lon), sorted by equal-area distance. Ties keep window order.
func (l *GridLocator) Locate(ctx context.Context, dctx *DatasetContext, lat, lon float64, radius, count int) ([]GridCell, error) {
	if err := ValidateLocation(lat, lon); err != nil {
		return nil, err
	}
	if err := ValidateCellCount(count); err != nil {
		return nil, err
	}
	if radius < 0 {
		return nil, validationErrorf("window radius must not be negative, got %d", radius)
	}

	center, err := l.source.GridIndex(ctx, lat, lon)
	if err != nil {
		return nil, sourceError("resolve grid index", err)
	}
	if !dctx.Bounds.Contains(center) {
		return nil, DataRangeErrorf("location (%.4f, %.4f) is outside the dataset grid", lat, lon)
	}

	window := make([]GridIndex, 0, (2*radius+1)*(2*radius+1))
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			idx := GridIndex{X: center.X + dx, Y: center.Y + dy}
			if dctx.Bounds.Contains(idx) {
				window = append(window, idx)
			}
		}
	}

	coords, err := l.source.Coordinates(ctx, window)
	if err != nil {
		return nil, sourceError("load cell coordinates", err)
	}
	if len(coords) != len(window) {
		return nil, ResourceError("load cell coordinates",
			fmt.Errorf("got %d coordinates for %d cells", len(coords), len(window)))
	}

	qx, qy, err := l.proj.Forward(lon, lat)
	if err != nil {
		return nil, validationErrorf("%v", err)
	}

	cells := make([]GridCell, 0, len(window))
	for i, idx := range window {
		x, y, err := l.proj.Forward(coords[i].Lon, coords[i].Lat)
		if err != nil {
			return nil, ResourceError("project cell coordinates", err)
		}
		dx, dy := x-qx, y-qy
		cells = append(cells, GridCell{
			XIdx:      idx.X,
			YIdx:      idx.Y,
			Lat:       coords[i].Lat,
			Lon:       coords[i].Lon,
			XCentered: dx,
			YCentered: dy,
			DistanceM: math.Hypot(dx, dy),
		})
	}

	slices.SortStableFunc(cells, func(a, b GridCell) int {
		switch {
		case a.DistanceM < b.DistanceM:
			return -1
		case a.DistanceM > b.DistanceM:
			return 1
		}
		return 0
	})
	if len(cells) > count {
		cells = cells[:count]
	}
	return cells, nil
}

// sourceError keeps coverage and validation errors reported by a source as
// they are and classifies everything else as a resource failure.
func sourceError(op string, err error) error {
	if errors.Is(err, ErrDataRange) || errors.Is(err, ErrValidation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return ResourceError(op, err)
}
