package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/i474232898/wind-timeseries/internal/geo"
	"github.com/i474232898/wind-timeseries/internal/logging"
	"github.com/i474232898/wind-timeseries/internal/wind"
	"github.com/i474232898/wind-timeseries/internal/workers"
)

// SnapshotVersion is bumped whenever the encoded layout changes.
const SnapshotVersion = 1

// Snapshot is a rectangular window of the dataset: every height of the
// windspeed and winddirection variables plus the stability indicator, over a
// contiguous time range. Values are stored as float32 in [t][x][y] order.
type Snapshot struct {
	Version  int     `msgpack:"version"`
	Domain   string  `msgpack:"domain"`
	SpacingM float64 `msgpack:"spacing_m"`

	// Window origin in native grid indices, and its size.
	X0 int `msgpack:"x0"`
	Y0 int `msgpack:"y0"`
	NX int `msgpack:"nx"`
	NY int `msgpack:"ny"`

	// Times are Unix seconds.
	Times []int64 `msgpack:"times"`
	// Lat and Lon are [x][y].
	Lat []float32 `msgpack:"lat"`
	Lon []float32 `msgpack:"lon"`

	Datasets map[string][]float32 `msgpack:"datasets"`
}

// SnapshotWindow selects what BuildSnapshot extracts.
type SnapshotWindow struct {
	Lat, Lon    float64
	Radius      int
	Start, Stop time.Time
	// Concurrent dataset reads; <= 0 means unbounded.
	Limit int
}

// BuildSnapshot copies the window around (Lat, Lon) from src.
func BuildSnapshot(ctx context.Context, src wind.GriddedDataSource, w SnapshotWindow, domain string) (*Snapshot, error) {
	lg := logging.FromContext(ctx)
	dctx, err := wind.LoadDatasetContext(ctx, src)
	if err != nil {
		return nil, err
	}
	center, err := src.GridIndex(ctx, w.Lat, w.Lon)
	if err != nil {
		return nil, err
	}
	b := dctx.Bounds
	x0, x1 := max(b.X0, center.X-w.Radius), min(b.X1, center.X+w.Radius+1)
	y0, y1 := max(b.Y0, center.Y-w.Radius), min(b.Y1, center.Y+w.Radius+1)
	if x0 >= x1 || y0 >= y1 {
		return nil, wind.DataRangeErrorf("window around (%.4f, %.4f) is outside the dataset grid", w.Lat, w.Lon)
	}

	tr := wind.SelectTimeIndices(dctx.Timestamps, w.Start, w.Stop)
	if tr.Len() == 0 {
		return nil, wind.DataRangeErrorf("no timestamps between %s and %s", w.Start.Format(time.RFC3339), w.Stop.Format(time.RFC3339))
	}
	t0, t1 := tr.Span()

	snap := &Snapshot{
		Version:  SnapshotVersion,
		Domain:   domain,
		SpacingM: geo.NativeGridSpacing,
		X0:       x0,
		Y0:       y0,
		NX:       x1 - x0,
		NY:       y1 - y0,
		Datasets: make(map[string][]float32),
	}
	for _, ts := range dctx.Timestamps[t0 : t1+1] {
		snap.Times = append(snap.Times, ts.Unix())
	}

	cells := make([]wind.GridIndex, 0, snap.NX*snap.NY)
	for x := x0; x < x1; x++ {
		for y := y0; y < y1; y++ {
			cells = append(cells, wind.GridIndex{X: x, Y: y})
		}
	}
	coords, err := src.Coordinates(ctx, cells)
	if err != nil {
		return nil, err
	}
	snap.Lat = make([]float32, len(coords))
	snap.Lon = make([]float32, len(coords))
	for i, c := range coords {
		snap.Lat[i] = float32(c.Lat)
		snap.Lon[i] = float32(c.Lon)
	}

	type dataset struct {
		v      wind.Variable
		height int
	}
	var sets []dataset
	for _, v := range []wind.Variable{wind.VarWindspeed, wind.VarWinddirection, wind.VarStability} {
		for _, h := range dctx.Heights[v] {
			sets = append(sets, dataset{v, h})
		}
	}

	nt := t1 - t0 + 1
	arrays, err := workers.Map(ctx, w.Limit, sets, func(ctx context.Context, _ int, d dataset) ([]float32, error) {
		out := make([]float32, nt*len(cells))
		for ci, c := range cells {
			vals, err := src.Slab(ctx, d.v, d.height, c, t0, t1)
			if err != nil {
				return nil, err
			}
			for t, v := range vals {
				out[t*len(cells)+ci] = float32(v)
			}
		}
		lg.Debug("snapshot dataset copied", "dataset", d.v.DatasetName(d.height), "cells", len(cells))
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	for i, d := range sets {
		snap.Datasets[d.v.DatasetName(d.height)] = arrays[i]
	}
	lg.Info("snapshot built", "datasets", len(sets), "cells", len(cells), "timestamps", nt)
	return snap, nil
}

// Encode writes the snapshot to w (msgpack + zstd compression).
func (s *Snapshot) Encode(w io.Writer) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(s); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a snapshot written by Encode.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var s Snapshot
	if err := msgpack.NewDecoder(zr).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", s.Version, SnapshotVersion)
	}
	n := s.NX * s.NY
	if n <= 0 || len(s.Lat) != n || len(s.Lon) != n {
		return nil, fmt.Errorf("snapshot window %dx%d does not match %d coordinates", s.NX, s.NY, len(s.Lat))
	}
	for name, vals := range s.Datasets {
		if len(vals) != n*len(s.Times) {
			return nil, fmt.Errorf("snapshot dataset %s has %d values, want %d", name, len(vals), n*len(s.Times))
		}
	}
	return &s, nil
}

func parseS3URL(path string) (string, string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", err
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 url %q (want s3://bucket/key)", path)
	}
	return u.Host, key, nil
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// LoadSnapshot reads a snapshot from a local path or an s3://bucket/key URL.
func LoadSnapshot(ctx context.Context, path string) (*Snapshot, error) {
	var r io.ReadCloser
	if strings.HasPrefix(path, "s3://") {
		bucket, key, err := parseS3URL(path)
		if err != nil {
			return nil, err
		}
		client, err := newS3Client(ctx)
		if err != nil {
			return nil, wind.ResourceError("load snapshot", err)
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, wind.ResourceError("get "+path, err)
		}
		r = out.Body
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, wind.ResourceError("load snapshot", err)
		}
		r = f
	}
	defer r.Close()

	s, err := DecodeSnapshot(r)
	if err != nil {
		return nil, wind.ResourceError("load snapshot "+path, err)
	}
	logging.FromContext(ctx).Info("snapshot loaded", "path", path, "nx", s.NX, "ny", s.NY,
		"timestamps", len(s.Times), "datasets", len(s.Datasets))
	return s, nil
}

// SaveSnapshot writes s to a local path or an s3://bucket/key URL.
func SaveSnapshot(ctx context.Context, s *Snapshot, path string) error {
	if !strings.HasPrefix(path, "s3://") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := s.Encode(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	bucket, key, err := parseS3URL(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return err
	}
	client, err := newS3Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/zstd"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// SnapshotSource serves a decoded snapshot as a GriddedDataSource. Grid
// indices are the native ones, so results match the source the snapshot was
// built from.
type SnapshotSource struct {
	snap  *Snapshot
	times []time.Time
}

func NewSnapshotSource(s *Snapshot) *SnapshotSource {
	times := make([]time.Time, len(s.Times))
	for i, t := range s.Times {
		times[i] = time.Unix(t, 0).UTC()
	}
	return &SnapshotSource{snap: s, times: times}
}

// GridIndex returns the stored cell nearest to (lat, lon). Points more than
// one and a half cells away from every stored cell are outside the window.
func (s *SnapshotSource) GridIndex(_ context.Context, lat, lon float64) (wind.GridIndex, error) {
	const earthRadius = 6370997.0
	coslat := math.Cos(lat * math.Pi / 180)
	best, bestD := -1, math.Inf(1)
	for i := range s.snap.Lat {
		dy := (float64(s.snap.Lat[i]) - lat) * math.Pi / 180 * earthRadius
		dx := (float64(s.snap.Lon[i]) - lon) * math.Pi / 180 * earthRadius * coslat
		if d := math.Hypot(dx, dy); d < bestD {
			best, bestD = i, d
		}
	}
	spacing := s.snap.SpacingM
	if spacing <= 0 {
		spacing = geo.NativeGridSpacing
	}
	if best < 0 || bestD > 1.5*spacing {
		return wind.GridIndex{}, wind.DataRangeErrorf("location (%.4f, %.4f) is outside the snapshot window", lat, lon)
	}
	return wind.GridIndex{X: s.snap.X0 + best/s.snap.NY, Y: s.snap.Y0 + best%s.snap.NY}, nil
}

func (s *SnapshotSource) local(g wind.GridIndex) (int, error) {
	x, y := g.X-s.snap.X0, g.Y-s.snap.Y0
	if x < 0 || x >= s.snap.NX || y < 0 || y >= s.snap.NY {
		return 0, wind.DataRangeErrorf("cell (%d, %d) is outside the snapshot window", g.X, g.Y)
	}
	return x*s.snap.NY + y, nil
}

func (s *SnapshotSource) Coordinates(_ context.Context, idx []wind.GridIndex) ([]wind.LatLon, error) {
	out := make([]wind.LatLon, len(idx))
	for i, g := range idx {
		k, err := s.local(g)
		if err != nil {
			return nil, err
		}
		out[i] = wind.LatLon{Lat: float64(s.snap.Lat[k]), Lon: float64(s.snap.Lon[k])}
	}
	return out, nil
}

func (s *SnapshotSource) Bounds(context.Context) (wind.GridBounds, error) {
	return wind.GridBounds{
		X0: s.snap.X0,
		Y0: s.snap.Y0,
		X1: s.snap.X0 + s.snap.NX,
		Y1: s.snap.Y0 + s.snap.NY,
	}, nil
}

func (s *SnapshotSource) Heights(_ context.Context, v wind.Variable) ([]int, error) {
	var hs []int
	for name := range s.snap.Datasets {
		if dv, h, ok := wind.ParseDatasetName(name); ok && dv == v {
			hs = append(hs, h)
		}
	}
	slices.Sort(hs)
	return hs, nil
}

func (s *SnapshotSource) Timestamps(context.Context) ([]time.Time, error) {
	return slices.Clone(s.times), nil
}

func (s *SnapshotSource) Slab(_ context.Context, v wind.Variable, height int, idx wind.GridIndex, t0, t1 int) ([]float64, error) {
	vals, ok := s.snap.Datasets[v.DatasetName(height)]
	if !ok {
		return nil, wind.DataRangeErrorf("no dataset %s in snapshot", v.DatasetName(height))
	}
	k, err := s.local(idx)
	if err != nil {
		return nil, err
	}
	if t0 < 0 || t1 >= len(s.times) || t0 > t1 {
		return nil, wind.DataRangeErrorf("time range %d..%d outside 0..%d", t0, t1, len(s.times)-1)
	}
	n := s.snap.NX * s.snap.NY
	out := make([]float64, 0, t1-t0+1)
	for t := t0; t <= t1; t++ {
		out = append(out, float64(vals[t*n+k]))
	}
	return out, nil
}
