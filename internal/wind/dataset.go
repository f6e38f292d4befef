package wind

import (
	"context"
	"math"
	"slices"
	"time"
)

// DatasetContext holds the dataset facts every request needs: the time axis,
// the native heights per variable and the servable grid bounds. It is built
// once from a source and shared read-only by all pipeline calls.
type DatasetContext struct {
	Timestamps []time.Time
	Heights    map[Variable][]int
	Bounds     GridBounds
	LoadedAt   time.Time
}

// LoadDatasetContext reads the time axis, heights and bounds from src.
func LoadDatasetContext(ctx context.Context, src GriddedDataSource) (*DatasetContext, error) {
	ts, err := src.Timestamps(ctx)
	if err != nil {
		return nil, ResourceError("load timestamps", err)
	}
	for i := 1; i < len(ts); i++ {
		if !ts[i].After(ts[i-1]) {
			return nil, ResourceError("load timestamps", DataRangeErrorf("time axis is not increasing at index %d", i))
		}
	}

	bounds, err := src.Bounds(ctx)
	if err != nil {
		return nil, ResourceError("load grid bounds", err)
	}

	heights := make(map[Variable][]int)
	for _, v := range []Variable{VarWindspeed, VarWinddirection, VarStability} {
		hs, err := src.Heights(ctx, v)
		if err != nil {
			return nil, ResourceError("load heights of "+string(v), err)
		}
		hs = slices.Clone(hs)
		slices.Sort(hs)
		heights[v] = hs
	}

	return &DatasetContext{
		Timestamps: ts,
		Heights:    heights,
		Bounds:     bounds,
		LoadedAt:   time.Now().UTC(),
	}, nil
}

// HeightRange returns the lowest and highest native height of v.
func (d *DatasetContext) HeightRange(v Variable) (int, int, bool) {
	hs := d.Heights[v]
	if len(hs) == 0 {
		return 0, 0, false
	}
	return hs[0], hs[len(hs)-1], true
}

// IsNativeHeight reports whether h is an integer-valued native height of v.
func (d *DatasetContext) IsNativeHeight(v Variable, h float64) bool {
	if h != math.Trunc(h) {
		return false
	}
	return slices.Contains(d.Heights[v], int(h))
}

// HasStability reports whether the stability indicator is available.
func (d *DatasetContext) HasStability() bool {
	return slices.Contains(d.Heights[VarStability], StabilityHeight)
}

// checkHeight rejects heights outside the native range of v.
func (d *DatasetContext) checkHeight(v Variable, h float64) error {
	lo, hi, ok := d.HeightRange(v)
	if !ok {
		return DataRangeErrorf("dataset has no %s heights", v)
	}
	if h < float64(lo) || h > float64(hi) {
		return DataRangeErrorf("requested height is outside of allowed range: [%.2f, %.2f]", float64(lo), float64(hi))
	}
	return nil
}
