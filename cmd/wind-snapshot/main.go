// Command wind-snapshot copies a window of the wind dataset around a site
// into a compressed snapshot that the service can serve with
// DATA_SOURCE=snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/i474232898/wind-timeseries/internal/common"
	"github.com/i474232898/wind-timeseries/internal/config"
	"github.com/i474232898/wind-timeseries/internal/logging"
	"github.com/i474232898/wind-timeseries/internal/wind/sources"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("snapshot failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		lat    = flag.Float64("lat", 0, "site latitude in degrees")
		lon    = flag.Float64("lon", 0, "site longitude in degrees")
		radius = flag.Int("radius", 3, "window half-width in grid cells")
		start  = flag.String("start", "", "first date, YYYYMMDD or RFC3339")
		stop   = flag.String("stop", "", "last date (inclusive), YYYYMMDD or RFC3339")
		out    = flag.String("out", "snapshot.msgpack.zst", "output file or s3://bucket/key")
	)
	flag.Parse()

	if *radius < 1 {
		return fmt.Errorf("-radius must be at least 1, got %d", *radius)
	}
	t0, err := common.ParseDate(*start)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	t1, err := common.ParseDate(*stop)
	if err != nil {
		return fmt.Errorf("-stop: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lg := logging.New(cfg, version, "wind-snapshot")
	slog.SetDefault(lg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logging.WithContext(ctx, lg)

	src := sources.NewHSDS(sources.HSDSConfig{
		Endpoint: cfg.HSDSEndpoint,
		Domain:   cfg.HSDSDomain,
		Bucket:   cfg.HSDSBucket,
		APIKey:   cfg.HSDSAPIKey,
	}, &http.Client{Timeout: cfg.HTTPTimeout})

	snap, err := sources.BuildSnapshot(ctx, src, sources.SnapshotWindow{
		Lat:    *lat,
		Lon:    *lon,
		Radius: *radius,
		Start:  t0,
		Stop:   t1,
		Limit:  cfg.WorkerLimit,
	}, cfg.HSDSDomain)
	if err != nil {
		return err
	}
	if err := sources.SaveSnapshot(ctx, snap, *out); err != nil {
		return err
	}
	lg.Info("snapshot written", "out", *out, "nx", snap.NX, "ny", snap.NY, "timestamps", len(snap.Times))
	return nil
}
