package wind

import (
	"math"
	"slices"
)

// DefaultNeighbors is how many of the nearest cells idw, linear and cubic use.
const DefaultNeighbors = 4

// SpatialResult is a per-timestep series at the query point plus the
// distance of the nearest contributing cell.
type SpatialResult struct {
	Values  []float64
	MinDist float64
}

// InterpolateSpatial collapses raw per-cell columns onto the query point.
// Columns must be in distance order. neighbors <= 0 means DefaultNeighbors;
// nearest ignores it.
func InterpolateSpatial(raw RawCellSeries, method SpatialMethod, neighbors int) (SpatialResult, error) {
	if err := method.Validate(); err != nil {
		return SpatialResult{}, err
	}
	if len(raw.Cells) == 0 || len(raw.Columns) != len(raw.Cells) {
		return SpatialResult{}, degenerateErrorf("no grid cells to interpolate from")
	}
	res := SpatialResult{MinDist: raw.Cells[0].DistanceM}

	if method == SpatialNearest {
		res.Values = slices.Clone(raw.Columns[0])
		return res, nil
	}

	if neighbors <= 0 {
		neighbors = DefaultNeighbors
	}
	n := min(neighbors, len(raw.Cells))
	cells := raw.Cells[:n]
	cols := raw.Columns[:n]

	var (
		weights []float64
		inside  = true
		err     error
	)
	switch method {
	case SpatialIDW:
		weights = idwWeights(cells)
	case SpatialLinear:
		weights, inside, err = linearWeights(offsets(cells))
	case SpatialCubic:
		weights, inside, err = cubicWeights(offsets(cells))
	}
	if err != nil {
		return SpatialResult{}, err
	}

	rows := raw.Rows()
	res.Values = make([]float64, rows)
	if !inside {
		for r := range res.Values {
			res.Values[r] = math.NaN()
		}
		return res, nil
	}
	for r := 0; r < rows; r++ {
		res.Values[r] = weightedSum(weights, cols, r)
	}
	return res, nil
}

// idwWeights returns normalized 1/d weights over the centered offsets. A cell
// at distance zero takes all the weight.
func idwWeights(cells []GridCell) []float64 {
	w := make([]float64, len(cells))
	for i, c := range cells {
		if math.Hypot(c.XCentered, c.YCentered) == 0 {
			clear(w)
			w[i] = 1
			return w
		}
	}
	var sum float64
	for i, c := range cells {
		w[i] = 1 / math.Hypot(c.XCentered, c.YCentered)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// weightedSum combines row r of cols. A missing reading with non-zero weight
// makes the result missing.
func weightedSum(w []float64, cols [][]float64, r int) float64 {
	var v float64
	for i, wi := range w {
		if wi == 0 {
			continue
		}
		x := cols[i][r]
		if math.IsNaN(x) {
			return math.NaN()
		}
		v += wi * x
	}
	return v
}
