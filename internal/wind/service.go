package wind

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/i474232898/wind-timeseries/internal/geo"
	"github.com/i474232898/wind-timeseries/internal/logging"
	"github.com/i474232898/wind-timeseries/internal/workers"
)

// ResultStore caches finalized results by request key. Implementations must
// be safe for concurrent use.
type ResultStore interface {
	GetSeries(key string) (Series, error)
	SaveSeries(key string, s Series)
	GetWindrose(key string) (Windrose, error)
	SaveWindrose(key string, w Windrose)
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	// Projection measures cell distances; defaults to geo.EqualArea.
	Projection  *geo.Projection
	ExtractMode ExtractMode
	WorkerLimit int
	// Neighbors is how many cells idw, linear and cubic use.
	Neighbors int
	Store     ResultStore
}

// Service runs the windspeed, winddirection and windrose pipelines against
// one gridded data source.
type Service struct {
	source    GriddedDataSource
	locator   *GridLocator
	extractor *Extractor
	neighbors int
	store     ResultStore

	dataset atomic.Pointer[DatasetContext]
}

// NewService loads the dataset context from source and returns a ready Service.
func NewService(ctx context.Context, source GriddedDataSource, opts Options) (*Service, error) {
	p := opts.Projection
	if p == nil {
		var err error
		if p, err = geo.EqualArea(); err != nil {
			return nil, err
		}
	}
	neighbors := opts.Neighbors
	if neighbors <= 0 {
		neighbors = DefaultNeighbors
	}
	if neighbors > 16 {
		return nil, fmt.Errorf("neighbors must be at most 16, got %d", neighbors)
	}

	s := &Service{
		source:    source,
		locator:   NewGridLocator(source, p),
		extractor: NewExtractor(source, opts.ExtractMode, opts.WorkerLimit),
		neighbors: neighbors,
		store:     opts.Store,
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh reloads the dataset context, re-reading source metadata first when
// the source supports it. On failure the previous context stays in use.
func (s *Service) Refresh(ctx context.Context) error {
	if r, ok := s.source.(Reloader); ok && s.dataset.Load() != nil {
		if err := r.Reload(ctx); err != nil {
			return ResourceError("reload source metadata", err)
		}
	}
	d, err := LoadDatasetContext(ctx, s.source)
	if err != nil {
		return err
	}
	s.dataset.Store(d)
	logging.FromContext(ctx).Info("dataset context loaded",
		"timestamps", len(d.Timestamps),
		"windspeed_heights", d.Heights[VarWindspeed],
		"winddirection_heights", d.Heights[VarWinddirection],
		"stability", d.HasStability())
	return nil
}

// Dataset returns the dataset context currently in use.
func (s *Service) Dataset() *DatasetContext {
	return s.dataset.Load()
}

func validateQuery(q Query) error {
	if err := ValidateLocation(q.Lat, q.Lon); err != nil {
		return err
	}
	if math.IsNaN(q.Height) || q.Height <= 0 {
		return validationErrorf("height must be positive, got %v", q.Height)
	}
	if q.Start.IsZero() || q.Stop.IsZero() {
		return validationErrorf("start and stop dates are required")
	}
	if q.Stop.Before(q.Start) {
		return validationErrorf("stop date %s is before start date %s",
			q.Stop.UTC().Format(TimestampLayout), q.Start.UTC().Format(TimestampLayout))
	}
	return nil
}

func (s *Service) cellCount() int {
	if s.neighbors > DefaultCellCount {
		return 16
	}
	return DefaultCellCount
}

// Windspeed returns the windspeed series at the query point and height.
func (s *Service) Windspeed(ctx context.Context, q Query) (Series, error) {
	if err := q.Spatial.Validate(); err != nil {
		return Series{}, err
	}
	if err := q.Vertical.Validate(); err != nil {
		return Series{}, err
	}
	if err := validateQuery(q); err != nil {
		return Series{}, err
	}

	d := s.Dataset()
	if err := d.checkHeight(VarWindspeed, q.Height); err != nil {
		return Series{}, err
	}
	bracket, err := BracketHeight(d.Heights[VarWindspeed], q.Height)
	if err != nil {
		return Series{}, err
	}
	needStability := !bracket.Native() && q.Vertical.NeedsStability()
	if needStability && !d.HasStability() {
		return Series{}, DataRangeErrorf("dataset has no %s", VarStability.DatasetName(StabilityHeight))
	}

	key := q.Key(string(VarWindspeed))
	if s.store != nil {
		if cached, err := s.store.GetSeries(key); err == nil {
			return cached, nil
		}
	}

	lg := logging.FromContext(ctx)
	tr := SelectTimeIndices(d.Timestamps, q.Start, q.Stop)
	if tr.Len() == 0 {
		return newSeries(VarWindspeed, tr, nil), nil
	}
	cells, err := s.locator.Locate(ctx, d, q.Lat, q.Lon, DefaultWindowRadius, s.cellCount())
	if err != nil {
		return Series{}, err
	}
	lg.Debug("windspeed cells located", "cells", len(cells), "min_dist", cells[0].DistanceM, "rows", tr.Len())

	var values []float64
	if bracket.Native() {
		res, err := s.spatialSeries(ctx, VarWindspeed, bracket.Below, cells, tr, q.Spatial)
		if err != nil {
			return Series{}, err
		}
		values = res.Values
		lg.Debug("native height, vertical interpolation skipped", "height", bracket.Below)
	} else {
		type task struct {
			v       Variable
			height  int
			cells   []GridCell
			spatial SpatialMethod
		}
		tasks := []task{
			{VarWindspeed, bracket.Below, cells, q.Spatial},
			{VarWindspeed, bracket.Above, cells, q.Spatial},
		}
		if needStability {
			tasks = append(tasks, task{VarStability, StabilityHeight, cells[:1], SpatialNearest})
		}
		series, err := workers.Map(ctx, len(tasks), tasks, func(ctx context.Context, _ int, t task) ([]float64, error) {
			res, err := s.spatialSeries(ctx, t.v, t.height, t.cells, tr, t.spatial)
			return res.Values, err
		})
		if err != nil {
			return Series{}, err
		}
		var stability []float64
		if needStability {
			stability = series[2]
		}
		values, err = InterpolateVertical(q.Vertical, q.Height, bracket, series[0], series[1], stability)
		if err != nil {
			return Series{}, err
		}
		// Only vertically interpolated values are floored; native readings pass through.
		for i, v := range values {
			if v < 0 {
				values[i] = 0
			}
		}
		lg.Debug("vertical interpolation done", "below", bracket.Below, "above", bracket.Above, "method", q.Vertical.String())
	}

	out := newSeries(VarWindspeed, tr, values)
	if s.store != nil {
		s.store.SaveSeries(key, out)
	}
	return out, nil
}

// Winddirection returns the direction series of the single nearest cell at
// the native height closest to the query height. Angles are never averaged.
func (s *Service) Winddirection(ctx context.Context, q Query) (Series, error) {
	if err := validateQuery(q); err != nil {
		return Series{}, err
	}

	d := s.Dataset()
	if err := d.checkHeight(VarWinddirection, q.Height); err != nil {
		return Series{}, err
	}
	height := nearestHeight(d.Heights[VarWinddirection], q.Height)

	key := q.Key(string(VarWinddirection))
	if s.store != nil {
		if cached, err := s.store.GetSeries(key); err == nil {
			return cached, nil
		}
	}

	tr := SelectTimeIndices(d.Timestamps, q.Start, q.Stop)
	if tr.Len() == 0 {
		return newSeries(VarWinddirection, tr, nil), nil
	}
	cells, err := s.locator.Locate(ctx, d, q.Lat, q.Lon, 1, 1)
	if err != nil {
		return Series{}, err
	}
	res, err := s.spatialSeries(ctx, VarWinddirection, height, cells, tr, SpatialNearest)
	if err != nil {
		return Series{}, err
	}
	logging.FromContext(ctx).Debug("winddirection extracted", "height", height, "rows", tr.Len(), "min_dist", res.MinDist)

	for i, v := range res.Values {
		if !math.IsNaN(v) {
			res.Values[i] = NormalizeDirection(v)
		}
	}
	out := newSeries(VarWinddirection, tr, res.Values)
	if s.store != nil {
		s.store.SaveSeries(key, out)
	}
	return out, nil
}

// Windrose runs the windspeed and winddirection pipelines concurrently and
// aggregates them.
func (s *Service) Windrose(ctx context.Context, q Query) (Windrose, error) {
	if err := q.Spatial.Validate(); err != nil {
		return Windrose{}, err
	}
	if err := q.Vertical.Validate(); err != nil {
		return Windrose{}, err
	}

	key := q.Key("windrose")
	if s.store != nil {
		if cached, err := s.store.GetWindrose(key); err == nil {
			return cached, nil
		}
	}

	speed, direction, err := workers.Both(ctx,
		func(ctx context.Context) (Series, error) { return s.Windspeed(ctx, q) },
		func(ctx context.Context) (Series, error) { return s.Winddirection(ctx, q) })
	if err != nil {
		return Windrose{}, dedupe(err)
	}
	w := AggregateWindrose(speed, direction)
	if s.store != nil {
		s.store.SaveWindrose(key, w)
	}
	return w, nil
}

func (s *Service) spatialSeries(ctx context.Context, v Variable, height int, cells []GridCell, tr TimeIndexRange, method SpatialMethod) (SpatialResult, error) {
	raw, err := s.extractor.Extract(ctx, v, height, cells, tr)
	if err != nil {
		return SpatialResult{}, err
	}
	return InterpolateSpatial(raw, method, s.neighbors)
}

// nearestHeight returns the native height closest to h; ties go to the lower.
func nearestHeight(heights []int, h float64) int {
	best := heights[0]
	for _, nh := range heights[1:] {
		if math.Abs(float64(nh)-h) < math.Abs(float64(best)-h) {
			best = nh
		}
	}
	return best
}

func newSeries(v Variable, tr TimeIndexRange, values []float64) Series {
	pts := make([]Point, len(values))
	for i, val := range values {
		pts[i] = Point{Timestamp: tr.Timestamps[i].UTC(), Value: val}
	}
	return Series{Variable: v, Points: pts}
}

// dedupe collapses a joined error whose parts are identical, as happens when
// both windrose pipelines reject the same parameter.
func dedupe(err error) error {
	j, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err
	}
	errs := j.Unwrap()
	if len(errs) == 2 && errs[0].Error() == errs[1].Error() {
		return errs[0]
	}
	return err
}
