package wind_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/wind-timeseries/internal/geo"
	"github.com/i474232898/wind-timeseries/internal/wind"
	"github.com/i474232898/wind-timeseries/internal/wind/sources"
)

var day0 = time.Date(2010, 3, 2, 0, 0, 0, 0, time.UTC)

const (
	gridLat0 = 40.60
	gridLon0 = -74.10
	gridStep = 0.02
)

func speedAt(h, t int, idx wind.GridIndex) float64 {
	return 2 + 0.05*float64(h) + 0.1*float64(t) + 0.01*float64(idx.X) + 0.02*float64(idx.Y)
}

// newGrid builds a 10x10 grid with 24 hourly steps, windspeed at five
// heights, winddirection at two and the stability indicator.
func newGrid(withStability bool) *sources.Memory {
	times := make([]time.Time, 24)
	for i := range times {
		times[i] = day0.Add(time.Duration(i) * time.Hour)
	}
	m := sources.NewMemory(gridLat0, gridLon0, gridStep, 10, 10, times)
	for _, h := range []int{10, 40, 60, 80, 100} {
		m.Set(wind.VarWindspeed, h, func(t int, idx wind.GridIndex) float64 { return speedAt(h, t, idx) })
	}
	for _, h := range []int{40, 80} {
		m.Set(wind.VarWinddirection, h, func(t int, idx wind.GridIndex) float64 {
			return float64(30*t+h) + 1000*float64(idx.X) + float64(idx.Y)
		})
	}
	if withStability {
		m.Set(wind.VarStability, wind.StabilityHeight, func(int, wind.GridIndex) float64 { return 0.01 })
	}
	return m
}

// countingSource records calls and can fail reads of one dataset.
type countingSource struct {
	wind.GriddedDataSource

	mu       sync.Mutex
	lookups  int
	coords   int
	slabs    map[string]int
	failName string
}

func newCounting(src wind.GriddedDataSource) *countingSource {
	return &countingSource{GriddedDataSource: src, slabs: make(map[string]int)}
}

func (c *countingSource) GridIndex(ctx context.Context, lat, lon float64) (wind.GridIndex, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()
	return c.GriddedDataSource.GridIndex(ctx, lat, lon)
}

func (c *countingSource) Coordinates(ctx context.Context, idx []wind.GridIndex) ([]wind.LatLon, error) {
	c.mu.Lock()
	c.coords++
	c.mu.Unlock()
	return c.GriddedDataSource.Coordinates(ctx, idx)
}

func (c *countingSource) Slab(ctx context.Context, v wind.Variable, h int, idx wind.GridIndex, t0, t1 int) ([]float64, error) {
	name := v.DatasetName(h)
	c.mu.Lock()
	c.slabs[name]++
	fail := name == c.failName
	c.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return c.GriddedDataSource.Slab(ctx, v, h, idx, t0, t1)
}

func (c *countingSource) reads(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slabs[name]
}

func (c *countingSource) totalReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.slabs {
		n += v
	}
	return n
}

func newService(t *testing.T, src wind.GriddedDataSource, opts wind.Options) *wind.Service {
	t.Helper()
	svc, err := wind.NewService(context.Background(), src, opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func query(h float64, spatial wind.SpatialMethod, vertical wind.VerticalMethod) wind.Query {
	return wind.Query{
		Lat:      gridLat0 + 4.3*gridStep,
		Lon:      gridLon0 + 5.6*gridStep,
		Height:   h,
		Start:    day0,
		Stop:     day0.Add(5 * time.Hour),
		Spatial:  spatial,
		Vertical: vertical,
	}
}

func TestLocatorSortedAndSized(t *testing.T) {
	src := newGrid(true)
	dctx := newService(t, src, wind.Options{}).Dataset()
	ea, err := geo.EqualArea()
	if err != nil {
		t.Fatal(err)
	}
	locator := wind.NewGridLocator(src, ea)
	cases := []struct {
		name          string
		lat, lon      float64
		radius, count int
		want          int
	}{
		{"interior 4", gridLat0 + 4.3*gridStep, gridLon0 + 5.6*gridStep, 3, 4, 4},
		{"interior 16", gridLat0 + 4.3*gridStep, gridLon0 + 5.6*gridStep, 3, 16, 16},
		{"interior 1", gridLat0 + 4.3*gridStep, gridLon0 + 5.6*gridStep, 3, 1, 1},
		{"corner clipped window", gridLat0, gridLon0, 1, 16, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cells, err := locator.Locate(context.Background(), dctx, tc.lat, tc.lon, tc.radius, tc.count)
			if err != nil {
				t.Fatal(err)
			}
			if len(cells) != tc.want {
				t.Fatalf("got %d cells; want %d", len(cells), tc.want)
			}
			for i := 1; i < len(cells); i++ {
				if cells[i].DistanceM < cells[i-1].DistanceM {
					t.Fatalf("cells not sorted at %d: %v < %v", i, cells[i].DistanceM, cells[i-1].DistanceM)
				}
			}
			c := cells[0]
			if math.Abs(math.Hypot(c.XCentered, c.YCentered)-c.DistanceM) > 1e-6 {
				t.Fatalf("offsets %v,%v do not match distance %v", c.XCentered, c.YCentered, c.DistanceM)
			}
		})
	}

	if _, err := locator.Locate(context.Background(), dctx, gridLat0, gridLon0, 3, 3); !errors.Is(err, wind.ErrValidation) {
		t.Fatalf("count 3: err = %v; want ErrValidation", err)
	}
	if _, err := locator.Locate(context.Background(), dctx, gridLat0-1, gridLon0, 3, 4); !errors.Is(err, wind.ErrDataRange) {
		t.Fatalf("outside grid: err = %v; want ErrDataRange", err)
	}
}

func TestWindspeedNativeHeightBypass(t *testing.T) {
	src := newCounting(newGrid(true))
	svc := newService(t, src, wind.Options{})

	for _, m := range []wind.VerticalMethod{wind.VerticalNearest, wind.VerticalLinear, wind.VerticalNeutralPower, wind.VerticalStabilityPower} {
		got, err := svc.Windspeed(context.Background(), query(60, wind.SpatialNearest, m))
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if len(got.Points) != 6 {
			t.Fatalf("%s: %d rows; want 6", m, len(got.Points))
		}
		// Nearest cell of the query point is (4, 6).
		for i, p := range got.Points {
			want := speedAt(60, i, wind.GridIndex{X: 4, Y: 6})
			if math.Abs(p.Value-want) > 1e-12 {
				t.Fatalf("%s row %d = %v; want %v", m, i, p.Value, want)
			}
		}
	}
	for _, name := range []string{"windspeed_40m", "windspeed_80m", "inversemoninobukhovlength_2m"} {
		if n := src.reads(name); n != 0 {
			t.Fatalf("%s read %d times; native height must not fetch brackets", name, n)
		}
	}
}

func TestWindspeedBrackets(t *testing.T) {
	t.Run("linear fetches both brackets only", func(t *testing.T) {
		src := newCounting(newGrid(true))
		svc := newService(t, src, wind.Options{})
		got, err := svc.Windspeed(context.Background(), query(50, wind.SpatialIDW, wind.VerticalLinear))
		if err != nil {
			t.Fatal(err)
		}
		if src.reads("windspeed_40m") == 0 || src.reads("windspeed_60m") == 0 {
			t.Fatal("bracket heights were not read")
		}
		if src.reads("inversemoninobukhovlength_2m") != 0 {
			t.Fatal("stability read for a method that does not use it")
		}
		// Speeds grow by 0.05 m/s per meter, so 50 m sits 0.5 below 60 m.
		native, err := svc.Windspeed(context.Background(), query(60, wind.SpatialIDW, wind.VerticalLinear))
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Points) != 6 {
			t.Fatalf("got %d rows; want 6", len(got.Points))
		}
		for i := range got.Points {
			if want := native.Points[i].Value - 0.5; math.Abs(got.Points[i].Value-want) > 1e-9 {
				t.Fatalf("row %d = %v; want %v", i, got.Points[i].Value, want)
			}
		}
	})

	t.Run("stability power reads the indicator", func(t *testing.T) {
		src := newCounting(newGrid(true))
		svc := newService(t, src, wind.Options{})
		if _, err := svc.Windspeed(context.Background(), query(50, wind.SpatialNearest, wind.VerticalStabilityPower)); err != nil {
			t.Fatal(err)
		}
		if n := src.reads("inversemoninobukhovlength_2m"); n != 1 {
			t.Fatalf("stability read %d times; want exactly one cell", n)
		}
	})

	t.Run("stability power requires the indicator", func(t *testing.T) {
		src := newCounting(newGrid(false))
		svc := newService(t, src, wind.Options{})
		_, err := svc.Windspeed(context.Background(), query(50, wind.SpatialNearest, wind.VerticalStabilityPower))
		if !errors.Is(err, wind.ErrDataRange) {
			t.Fatalf("err = %v; want ErrDataRange", err)
		}
		if src.totalReads() != 0 {
			t.Fatal("data was read before the request was rejected")
		}
	})
}

func TestWindspeedFailsFast(t *testing.T) {
	src := newCounting(newGrid(true))
	svc := newService(t, src, wind.Options{})
	lookups := src.lookups

	cases := []struct {
		name string
		q    wind.Query
		want error
	}{
		{"unknown spatial", query(50, wind.SpatialMethod(0), wind.VerticalLinear), wind.ErrValidation},
		{"unknown vertical", query(50, wind.SpatialIDW, wind.VerticalMethod(42)), wind.ErrValidation},
		{"negative height", query(-5, wind.SpatialIDW, wind.VerticalLinear), wind.ErrValidation},
		{"height above range", query(150, wind.SpatialIDW, wind.VerticalLinear), wind.ErrDataRange},
		{"height below range", query(5, wind.SpatialIDW, wind.VerticalLinear), wind.ErrDataRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Windspeed(context.Background(), tc.q); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v; want %v", err, tc.want)
			}
		})
	}
	if src.totalReads() != 0 || src.lookups != lookups {
		t.Fatal("rejected requests performed I/O")
	}
}

func TestWindspeedEmptyRange(t *testing.T) {
	src := newCounting(newGrid(true))
	svc := newService(t, src, wind.Options{})
	q := query(50, wind.SpatialIDW, wind.VerticalLinear)
	q.Start = day0.AddDate(1, 0, 0)
	q.Stop = q.Start.Add(time.Hour)

	got, err := svc.Windspeed(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Points) != 0 {
		t.Fatalf("got %d rows; want 0", len(got.Points))
	}
	if src.totalReads() != 0 || src.lookups != 0 || src.coords != 0 {
		t.Fatalf("empty range did I/O: %d reads, %d lookups, %d coordinate reads", src.totalReads(), src.lookups, src.coords)
	}
	b, _ := json.Marshal(got)
	if string(b) != "[]" {
		t.Fatalf("empty series encodes as %s", b)
	}

	dir, err := svc.Winddirection(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(dir.Points) != 0 || src.lookups != 0 || src.coords != 0 {
		t.Fatalf("winddirection over an empty range: %d rows, %d lookups", len(dir.Points), src.lookups)
	}
}

func TestWindspeedFloorAppliesToInterpolatedHeights(t *testing.T) {
	m := newGrid(true)
	m.Set(wind.VarWindspeed, 40, func(t int, _ wind.GridIndex) float64 { return -3 - 0.1*float64(t) })
	m.Set(wind.VarWindspeed, 60, func(t int, _ wind.GridIndex) float64 { return -1 - 0.1*float64(t) })
	svc := newService(t, m, wind.Options{})

	// Native readings come back untouched.
	native, err := svc.Windspeed(context.Background(), query(60, wind.SpatialIDW, wind.VerticalLinear))
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range native.Points {
		if want := -1 - 0.1*float64(i); math.Abs(p.Value-want) > 1e-12 {
			t.Fatalf("native row %d = %v; want %v", i, p.Value, want)
		}
	}

	between, err := svc.Windspeed(context.Background(), query(50, wind.SpatialIDW, wind.VerticalLinear))
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range between.Points {
		if p.Value != 0 {
			t.Fatalf("interpolated row %d = %v; want 0", i, p.Value)
		}
	}
}

func TestWorkerErrorPropagates(t *testing.T) {
	src := newCounting(newGrid(true))
	src.failName = "windspeed_60m"
	svc := newService(t, src, wind.Options{})

	_, err := svc.Windspeed(context.Background(), query(50, wind.SpatialIDW, wind.VerticalLinear))
	if !errors.Is(err, wind.ErrResourceAccess) {
		t.Fatalf("err = %v; want ErrResourceAccess", err)
	}
	// The other bracket still ran to completion.
	if src.reads("windspeed_40m") == 0 {
		t.Fatal("sibling bracket was not joined")
	}
}

func TestSequentialMatchesParallel(t *testing.T) {
	par := newService(t, newGrid(true), wind.Options{ExtractMode: wind.ExtractParallel, WorkerLimit: 2})
	seq := newService(t, newGrid(true), wind.Options{ExtractMode: wind.ExtractSequential})

	for _, sm := range []wind.SpatialMethod{wind.SpatialNearest, wind.SpatialLinear, wind.SpatialCubic, wind.SpatialIDW} {
		q := query(70, sm, wind.VerticalStabilityPower)
		a, err := par.Windspeed(context.Background(), q)
		if err != nil {
			t.Fatalf("%s: %v", sm, err)
		}
		b, err := seq.Windspeed(context.Background(), q)
		if err != nil {
			t.Fatalf("%s: %v", sm, err)
		}
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		if !bytes.Equal(ja, jb) {
			t.Fatalf("%s: parallel %s != sequential %s", sm, ja, jb)
		}
	}
}

func TestIdempotentResults(t *testing.T) {
	svc := newService(t, newGrid(true), wind.Options{})
	q := query(67.5, wind.SpatialIDW, wind.VerticalNeutralPower)

	first, err := svc.Windrose(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Windrose(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("repeated windrose differs:\n%s\n%s", a, b)
	}
}

func TestWinddirection(t *testing.T) {
	src := newCounting(newGrid(true))
	svc := newService(t, src, wind.Options{})

	// 60 m is equidistant from 40 m and 80 m; the lower height wins.
	got, err := svc.Winddirection(context.Background(), query(60, wind.SpatialIDW, wind.VerticalLinear))
	if err != nil {
		t.Fatal(err)
	}
	if src.reads("winddirection_40m") != 1 || src.reads("winddirection_80m") != 0 {
		t.Fatalf("reads 40m=%d 80m=%d; want a single 40m cell", src.reads("winddirection_40m"), src.reads("winddirection_80m"))
	}
	if len(got.Points) != 6 {
		t.Fatalf("got %d rows; want 6", len(got.Points))
	}
	for i, p := range got.Points {
		if p.Value < 0 || p.Value >= 360 {
			t.Fatalf("row %d direction %v outside [0, 360)", i, p.Value)
		}
		raw := float64(30*i+40) + 1000*4 + 6
		if want := math.Mod(raw, 360); math.Abs(p.Value-want) > 1e-9 {
			t.Fatalf("row %d = %v; want %v", i, p.Value, want)
		}
	}
}

func TestWindrose(t *testing.T) {
	svc := newService(t, newGrid(true), wind.Options{})
	w, err := svc.Windrose(context.Background(), query(50, wind.SpatialIDW, wind.VerticalLinear))
	if err != nil {
		t.Fatal(err)
	}
	if w.Observations != 6 {
		t.Fatalf("Observations = %d; want 6", w.Observations)
	}
	var anySum float64
	for sec := range wind.Sectors {
		anySum += w.Any[sec]
		for c := range wind.SpeedClasses {
			if v := w.Classes[c][sec]; v < 0 || v > 100 {
				t.Fatalf("percentage %v outside [0, 100]", v)
			}
		}
	}
	if math.Abs(anySum-100) > 1e-9 {
		t.Fatalf("Any sums to %v", anySum)
	}

	_, err = svc.Windrose(context.Background(), query(500, wind.SpatialIDW, wind.VerticalLinear))
	if !errors.Is(err, wind.ErrDataRange) {
		t.Fatalf("err = %v; want ErrDataRange", err)
	}
}

type mapStore struct {
	mu     sync.Mutex
	series map[string]wind.Series
	roses  map[string]wind.Windrose
}

func (m *mapStore) GetSeries(key string) (wind.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[key]
	if !ok {
		return wind.Series{}, errors.New("miss")
	}
	return s, nil
}

func (m *mapStore) SaveSeries(key string, s wind.Series) {
	m.mu.Lock()
	m.series[key] = s
	m.mu.Unlock()
}

func (m *mapStore) GetWindrose(key string) (wind.Windrose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.roses[key]
	if !ok {
		return wind.Windrose{}, errors.New("miss")
	}
	return w, nil
}

func (m *mapStore) SaveWindrose(key string, w wind.Windrose) {
	m.mu.Lock()
	m.roses[key] = w
	m.mu.Unlock()
}

func TestResultStoreServesRepeats(t *testing.T) {
	src := newCounting(newGrid(true))
	store := &mapStore{series: map[string]wind.Series{}, roses: map[string]wind.Windrose{}}
	svc := newService(t, src, wind.Options{Store: store})
	q := query(50, wind.SpatialIDW, wind.VerticalLinear)

	if _, err := svc.Windspeed(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	reads := src.totalReads()
	if _, err := svc.Windspeed(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if src.totalReads() != reads {
		t.Fatal("cached request read the source again")
	}
}
