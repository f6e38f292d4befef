package wind

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/orderedmap"
)

// TimestampLayout is how finalized series render their timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Variable names a family of gridded datasets, one per native height.
type Variable string

const (
	VarWindspeed     Variable = "windspeed"
	VarWinddirection Variable = "winddirection"
	// VarStability is the inverse Monin-Obukhov length (1/m).
	VarStability Variable = "inversemoninobukhovlength"
)

// StabilityHeight is the only height the stability indicator is published at.
const StabilityHeight = 2

// DatasetName returns the native dataset name, e.g. "windspeed_50m".
func (v Variable) DatasetName(height int) string {
	return fmt.Sprintf("%s_%dm", v, height)
}

// ParseDatasetName splits a native dataset name into variable and height.
func ParseDatasetName(name string) (Variable, int, bool) {
	i := strings.LastIndex(name, "_")
	if i <= 0 || !strings.HasSuffix(name, "m") {
		return "", 0, false
	}
	h, err := strconv.Atoi(strings.TrimSuffix(name[i+1:], "m"))
	if err != nil || h < 0 {
		return "", 0, false
	}
	return Variable(name[:i]), h, true
}

// GridIndex addresses one column of the grid. X is the dataset's first
// spatial axis, Y the second.
type GridIndex struct {
	X int `msgpack:"x"`
	Y int `msgpack:"y"`
}

// GridBounds is the half-open index rectangle [X0,X1) x [Y0,Y1) a source can serve.
type GridBounds struct {
	X0, Y0, X1, Y1 int
}

// Contains reports whether idx lies within b.
func (b GridBounds) Contains(idx GridIndex) bool {
	return idx.X >= b.X0 && idx.X < b.X1 && idx.Y >= b.Y0 && idx.Y < b.Y1
}

// LatLon is a geographic position in degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GridCell is a grid column near the query point. Offsets are relative to
// the query point in equal-area meters.
type GridCell struct {
	XIdx      int     `json:"x_idx"`
	YIdx      int     `json:"y_idx"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	XCentered float64 `json:"x_centered"`
	YCentered float64 `json:"y_centered"`
	DistanceM float64 `json:"d"`
}

// Index returns the cell's grid index.
func (c GridCell) Index() GridIndex {
	return GridIndex{X: c.XIdx, Y: c.YIdx}
}

// TimeIndexRange pairs dataset time-step indices with their timestamps, in
// increasing order.
type TimeIndexRange struct {
	Indices    []int
	Timestamps []time.Time
}

// Len returns the number of selected time steps.
func (r TimeIndexRange) Len() int {
	return len(r.Indices)
}

// Span returns the smallest and largest selected index. It must not be
// called on an empty range.
func (r TimeIndexRange) Span() (int, int) {
	return r.Indices[0], r.Indices[len(r.Indices)-1]
}

// RawCellSeries holds one column per cell, positionally aligned with Cells,
// and one row per time step.
type RawCellSeries struct {
	Cells   []GridCell
	Columns [][]float64
}

// Rows returns the number of time steps.
func (r RawCellSeries) Rows() int {
	if len(r.Columns) == 0 {
		return 0
	}
	return len(r.Columns[0])
}

// Point is one finalized (timestamp, value) pair. Missing values are NaN.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Series is a finalized, time-ordered series for one variable.
type Series struct {
	Variable Variable
	Points   []Point
}

// MarshalJSON renders the series as an ordered list of
// {"timestamp": ..., "<variable>": value} objects; missing values are null.
func (s Series) MarshalJSON() ([]byte, error) {
	rows := make([]*orderedmap.OrderedMap, 0, len(s.Points))
	for _, p := range s.Points {
		o := orderedmap.New()
		o.Set("timestamp", p.Timestamp.UTC().Format(TimestampLayout))
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			o.Set(string(s.Variable), nil)
		} else {
			o.Set(string(s.Variable), p.Value)
		}
		rows = append(rows, o)
	}
	return json.Marshal(rows)
}

// Values returns the series values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Query is a point request: location, height, inclusive time range and
// interpolation methods.
type Query struct {
	Lat      float64
	Lon      float64
	Height   float64
	Start    time.Time
	Stop     time.Time
	Spatial  SpatialMethod
	Vertical VerticalMethod
}

// Key returns a canonical cache key for the query's inputs to kind.
func (q Query) Key(kind string) string {
	base := strings.Join([]string{
		kind,
		strconv.FormatFloat(q.Lat, 'g', -1, 64),
		strconv.FormatFloat(q.Lon, 'g', -1, 64),
		strconv.FormatFloat(q.Height, 'g', -1, 64),
		strconv.FormatInt(q.Start.UnixNano(), 10),
		strconv.FormatInt(q.Stop.UnixNano(), 10),
	}, "|")
	if kind == string(VarWinddirection) {
		return base
	}
	return base + "|" + q.Spatial.String() + "|" + q.Vertical.String()
}
