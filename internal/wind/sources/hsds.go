package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker"

	"github.com/i474232898/wind-timeseries/internal/geo"
	"github.com/i474232898/wind-timeseries/internal/logging"
	"github.com/i474232898/wind-timeseries/internal/wind"
)

const (
	coordinatesDataset = "coordinates"
	datetimeDataset    = "datetime"
)

// HSDSConfig addresses a WTK domain on an HSDS REST endpoint.
type HSDSConfig struct {
	Endpoint  string
	Domain    string
	Bucket    string
	APIKey    string
	CacheSize int
	CacheTTL  time.Duration
}

// HSDS reads the WTK dataset through the HSDS REST API. Dataset metadata is
// loaded lazily on first use; cell reads go through an expiring LRU.
type HSDS struct {
	cfg     HSDSConfig
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	slabs   *expirable.LRU[string, []float64]

	mu   sync.Mutex
	meta *hsdsMeta
}

type hsdsMeta struct {
	datasets map[string]string // title -> dataset id
	shape    [2]int
	grid     *geo.Grid
	times    []time.Time
}

// NewHSDS returns an HSDS source using client for all requests.
func NewHSDS(cfg HSDSConfig, client *http.Client) *HSDS {
	size := cfg.CacheSize
	if size <= 0 {
		size = 4096
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &HSDS{
		cfg: cfg,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		circuit: newBreaker("hsds"),
		slabs:   expirable.NewLRU[string, []float64](size, nil, cfg.CacheTTL),
	}
}

func (h *HSDS) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	buildRequest := func() (*http.Request, error) {
		q := url.Values{}
		q.Set("domain", h.cfg.Domain)
		if h.cfg.Bucket != "" {
			q.Set("bucket", h.cfg.Bucket)
		}
		if h.cfg.APIKey != "" {
			q.Set("api_key", h.cfg.APIKey)
		}
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req, err := http.NewRequest(http.MethodGet, h.cfg.Endpoint+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, h.httpCfg, h.circuit, buildRequest)
	if err != nil {
		return wind.ResourceError("hsds GET "+path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return wind.ResourceError("hsds decode "+path, err)
	}
	return nil
}

// metadata returns the cached dataset metadata, loading it on first use.
// Failures are not cached.
func (h *HSDS) metadata(ctx context.Context) (*hsdsMeta, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.meta != nil {
		return h.meta, nil
	}
	m, err := h.loadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	h.meta = m
	return m, nil
}

// Reload re-reads the dataset metadata from the server and swaps it in. Slab
// reads cached against the previous time axis are dropped. On failure the
// previous metadata stays in use.
func (h *HSDS) Reload(ctx context.Context) error {
	m, err := h.loadMetadata(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.meta = m
	h.slabs.Purge()
	h.mu.Unlock()
	return nil
}

// loadMetadata reads dataset ids, grid shape, grid origin and time axis.
func (h *HSDS) loadMetadata(ctx context.Context) (*hsdsMeta, error) {
	var root struct {
		Root string `json:"root"`
	}
	if err := h.getJSON(ctx, "/", nil, &root); err != nil {
		return nil, err
	}

	var links struct {
		Links []struct {
			Title string `json:"title"`
			ID    string `json:"id"`
		} `json:"links"`
	}
	if err := h.getJSON(ctx, "/groups/"+root.Root+"/links", nil, &links); err != nil {
		return nil, err
	}
	m := &hsdsMeta{datasets: make(map[string]string, len(links.Links))}
	for _, l := range links.Links {
		m.datasets[l.Title] = l.ID
	}

	coordID, ok := m.datasets[coordinatesDataset]
	if !ok {
		return nil, wind.ResourceError("hsds metadata", fmt.Errorf("domain has no %q dataset", coordinatesDataset))
	}
	var info struct {
		Shape struct {
			Dims []int `json:"dims"`
		} `json:"shape"`
	}
	if err := h.getJSON(ctx, "/datasets/"+coordID, nil, &info); err != nil {
		return nil, err
	}
	if len(info.Shape.Dims) < 2 {
		return nil, wind.ResourceError("hsds metadata", fmt.Errorf("coordinates shape %v is not 2-D", info.Shape.Dims))
	}
	m.shape = [2]int{info.Shape.Dims[0], info.Shape.Dims[1]}

	origin, err := h.readCoordinates(ctx, coordID, 0, 1, 0, 1)
	if err != nil {
		return nil, err
	}
	lcc, err := geo.NativeGrid()
	if err != nil {
		return nil, err
	}
	if m.grid, err = geo.NewGrid(lcc, origin[0][0].Lat, origin[0][0].Lon, geo.NativeGridSpacing); err != nil {
		return nil, err
	}

	timeID, ok := m.datasets[datetimeDataset]
	if !ok {
		return nil, wind.ResourceError("hsds metadata", fmt.Errorf("domain has no %q dataset", datetimeDataset))
	}
	var raw struct {
		Value []string `json:"value"`
	}
	if err := h.getJSON(ctx, "/datasets/"+timeID+"/value", nil, &raw); err != nil {
		return nil, err
	}
	m.times = make([]time.Time, len(raw.Value))
	for i, s := range raw.Value {
		if m.times[i], err = parseDatetime(s); err != nil {
			return nil, wind.ResourceError("hsds datetime", err)
		}
	}

	logging.FromContext(ctx).Info("hsds metadata loaded",
		"domain", h.cfg.Domain, "datasets", len(m.datasets), "shape", m.shape, "timestamps", len(m.times))
	return m, nil
}

var datetimeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339, "20060102150405"}

func parseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// readCoordinates reads the [x0:x1, y0:y1] block of the compound
// (lat, lon) coordinates dataset.
func (h *HSDS) readCoordinates(ctx context.Context, id string, x0, x1, y0, y1 int) ([][]wind.LatLon, error) {
	params := url.Values{}
	params.Set("select", fmt.Sprintf("[%d:%d,%d:%d]", x0, x1, y0, y1))
	var raw struct {
		Value [][][2]float64 `json:"value"`
	}
	if err := h.getJSON(ctx, "/datasets/"+id+"/value", params, &raw); err != nil {
		return nil, err
	}
	if len(raw.Value) != x1-x0 {
		return nil, wind.ResourceError("hsds coordinates", fmt.Errorf("got %d rows, want %d", len(raw.Value), x1-x0))
	}
	out := make([][]wind.LatLon, len(raw.Value))
	for i, row := range raw.Value {
		if len(row) != y1-y0 {
			return nil, wind.ResourceError("hsds coordinates", fmt.Errorf("got %d columns, want %d", len(row), y1-y0))
		}
		out[i] = make([]wind.LatLon, len(row))
		for j, c := range row {
			out[i][j] = wind.LatLon{Lat: c[0], Lon: c[1]}
		}
	}
	return out, nil
}

func (h *HSDS) GridIndex(ctx context.Context, lat, lon float64) (wind.GridIndex, error) {
	m, err := h.metadata(ctx)
	if err != nil {
		return wind.GridIndex{}, err
	}
	row, col, err := m.grid.Index(lat, lon)
	if err != nil {
		return wind.GridIndex{}, wind.DataRangeErrorf("%v", err)
	}
	return wind.GridIndex{X: row, Y: col}, nil
}

// Coordinates reads the bounding block of idx in one request.
func (h *HSDS) Coordinates(ctx context.Context, idx []wind.GridIndex) ([]wind.LatLon, error) {
	if len(idx) == 0 {
		return nil, nil
	}
	m, err := h.metadata(ctx)
	if err != nil {
		return nil, err
	}
	x0, x1, y0, y1 := idx[0].X, idx[0].X, idx[0].Y, idx[0].Y
	for _, g := range idx {
		if g.X < 0 || g.X >= m.shape[0] || g.Y < 0 || g.Y >= m.shape[1] {
			return nil, wind.DataRangeErrorf("cell (%d, %d) is outside the grid", g.X, g.Y)
		}
		x0, x1 = min(x0, g.X), max(x1, g.X)
		y0, y1 = min(y0, g.Y), max(y1, g.Y)
	}
	block, err := h.readCoordinates(ctx, m.datasets[coordinatesDataset], x0, x1+1, y0, y1+1)
	if err != nil {
		return nil, err
	}
	out := make([]wind.LatLon, len(idx))
	for i, g := range idx {
		out[i] = block[g.X-x0][g.Y-y0]
	}
	return out, nil
}

func (h *HSDS) Bounds(ctx context.Context) (wind.GridBounds, error) {
	m, err := h.metadata(ctx)
	if err != nil {
		return wind.GridBounds{}, err
	}
	return wind.GridBounds{X1: m.shape[0], Y1: m.shape[1]}, nil
}

func (h *HSDS) Heights(ctx context.Context, v wind.Variable) ([]int, error) {
	m, err := h.metadata(ctx)
	if err != nil {
		return nil, err
	}
	var hs []int
	for title := range m.datasets {
		if dv, height, ok := wind.ParseDatasetName(title); ok && dv == v {
			hs = append(hs, height)
		}
	}
	slices.Sort(hs)
	return hs, nil
}

func (h *HSDS) Timestamps(ctx context.Context) ([]time.Time, error) {
	m, err := h.metadata(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(m.times), nil
}

func (h *HSDS) Slab(ctx context.Context, v wind.Variable, height int, idx wind.GridIndex, t0, t1 int) ([]float64, error) {
	m, err := h.metadata(ctx)
	if err != nil {
		return nil, err
	}
	name := v.DatasetName(height)
	id, ok := m.datasets[name]
	if !ok {
		return nil, wind.DataRangeErrorf("no dataset %s", name)
	}
	if t0 < 0 || t1 >= len(m.times) || t0 > t1 {
		return nil, wind.DataRangeErrorf("time range %d..%d outside 0..%d", t0, t1, len(m.times)-1)
	}

	key := fmt.Sprintf("%s|%d|%d|%d|%d", name, idx.X, idx.Y, t0, t1)
	if vals, ok := h.slabs.Get(key); ok {
		return slices.Clone(vals), nil
	}

	params := url.Values{}
	params.Set("select", fmt.Sprintf("[%d:%d,%d:%d,%d:%d]", t0, t1+1, idx.X, idx.X+1, idx.Y, idx.Y+1))
	// Fill values arrive as null.
	var raw struct {
		Value [][][]*float64 `json:"value"`
	}
	if err := h.getJSON(ctx, "/datasets/"+id+"/value", params, &raw); err != nil {
		return nil, err
	}
	vals := make([]float64, 0, len(raw.Value))
	for _, plane := range raw.Value {
		if len(plane) != 1 || len(plane[0]) != 1 {
			return nil, wind.ResourceError("hsds read "+name, fmt.Errorf("unexpected slab shape"))
		}
		if v := plane[0][0]; v != nil {
			vals = append(vals, *v)
		} else {
			vals = append(vals, math.NaN())
		}
	}
	h.slabs.Add(key, vals)
	return slices.Clone(vals), nil
}
