package wind

import (
	"context"
	"fmt"

	"github.com/i474232898/wind-timeseries/internal/logging"
	"github.com/i474232898/wind-timeseries/internal/workers"
)

// ExtractMode selects how per-cell slabs are fetched.
type ExtractMode int

const (
	ExtractParallel ExtractMode = iota
	// ExtractSequential fetches one cell at a time; meant for diagnostics.
	ExtractSequential
)

// ParseExtractMode maps "parallel" or "sequential" onto an ExtractMode.
func ParseExtractMode(s string) (ExtractMode, error) {
	switch s {
	case "", "parallel":
		return ExtractParallel, nil
	case "sequential":
		return ExtractSequential, nil
	}
	return 0, validationErrorf("invalid extract mode %q", s)
}

// Extractor reads one time slab per cell and aligns the results into a
// RawCellSeries.
type Extractor struct {
	source GriddedDataSource
	mode   ExtractMode
	limit  int
}

// NewExtractor returns an extractor reading from source. limit bounds the
// number of concurrent reads in parallel mode (<= 0 means one per cell).
func NewExtractor(source GriddedDataSource, mode ExtractMode, limit int) *Extractor {
	return &Extractor{source: source, mode: mode, limit: limit}
}

// Extract returns one column per cell, in cell order, with one row per
// selected time step. An empty time range yields empty columns without I/O.
func (e *Extractor) Extract(ctx context.Context, v Variable, height int, cells []GridCell, tr TimeIndexRange) (RawCellSeries, error) {
	if tr.Len() == 0 {
		cols := make([][]float64, len(cells))
		for i := range cols {
			cols[i] = []float64{}
		}
		return RawCellSeries{Cells: cells, Columns: cols}, nil
	}

	t0, t1 := tr.Span()
	logging.FromContext(ctx).Debug("extracting slabs",
		"dataset", v.DatasetName(height), "cells", len(cells), "t0", t0, "t1", t1)

	read := func(ctx context.Context, _ int, c GridCell) ([]float64, error) {
		slab, err := e.source.Slab(ctx, v, height, c.Index(), t0, t1)
		if err != nil {
			return nil, sourceError(fmt.Sprintf("read %s at (%d, %d)", v.DatasetName(height), c.XIdx, c.YIdx), err)
		}
		if len(slab) != t1-t0+1 {
			return nil, ResourceError("read "+v.DatasetName(height),
				fmt.Errorf("got %d values for time steps %d..%d", len(slab), t0, t1))
		}
		col := make([]float64, len(tr.Indices))
		for r, ti := range tr.Indices {
			col[r] = slab[ti-t0]
		}
		return col, nil
	}

	var (
		cols [][]float64
		err  error
	)
	if e.mode == ExtractSequential {
		cols, err = workers.MapSequential(ctx, cells, read)
	} else {
		cols, err = workers.Map(ctx, e.limit, cells, read)
	}
	if err != nil {
		return RawCellSeries{}, err
	}
	return RawCellSeries{Cells: cells, Columns: cols}, nil
}
