package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	AppEnv   string
	LogLevel slog.Level
	// LogFile, when set, receives a rotated copy of all log output.
	LogFile string
	Port    string

	// DataSource selects the gridded data backend: "hsds" or "snapshot".
	DataSource string

	HSDSEndpoint string
	HSDSDomain   string
	HSDSBucket   string
	HSDSAPIKey   string
	HTTPTimeout  time.Duration

	// SnapshotPath is a local file or an s3://bucket/key URL.
	SnapshotPath string

	// Read cache inside the HSDS source.
	SourceCacheSize int
	SourceCacheTTL  time.Duration

	// Finalized result cache.
	ResultCacheSize int
	ResultCacheTTL  time.Duration

	// RefreshInterval controls how often the dataset context is reloaded.
	RefreshInterval time.Duration

	// ExtractMode is "parallel" or "sequential" per-cell extraction.
	ExtractMode string
	WorkerLimit int

	GeocoderAPIKey string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return nil, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	if cfg.LogLevel, err = parseLogLevel(getenvDefault("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	cfg.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.DataSource = getenvDefault("DATA_SOURCE", "hsds")
	switch cfg.DataSource {
	case "hsds":
	case "snapshot":
		cfg.SnapshotPath = strings.TrimSpace(os.Getenv("SNAPSHOT_PATH"))
		if cfg.SnapshotPath == "" {
			return nil, fmt.Errorf("SNAPSHOT_PATH is required when DATA_SOURCE=snapshot")
		}
	default:
		return nil, fmt.Errorf("invalid DATA_SOURCE %q (allowed: hsds, snapshot)", cfg.DataSource)
	}

	cfg.HSDSEndpoint = strings.TrimRight(getenvDefault("HSDS_ENDPOINT", "https://developer.nrel.gov/api/hsds"), "/")
	cfg.HSDSDomain = getenvDefault("HSDS_DOMAIN", "/nrel/wtk-us.h5")
	cfg.HSDSBucket = getenvDefault("HSDS_BUCKET", "nrel-pds-hsds")
	cfg.HSDSAPIKey = os.Getenv("HSDS_API_KEY")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.SourceCacheTTL, err = getenvDuration("SOURCE_CACHE_TTL", "1h"); err != nil {
		return nil, err
	}
	if cfg.ResultCacheTTL, err = getenvDuration("RESULT_CACHE_TTL", "15m"); err != nil {
		return nil, err
	}
	// Refresh interval: default 6 hours; the dataset is static between releases.
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "6h"); err != nil {
		return nil, err
	}

	if cfg.SourceCacheSize, err = getenvInt("SOURCE_CACHE_SIZE", 4096); err != nil {
		return nil, err
	}
	if cfg.ResultCacheSize, err = getenvInt("RESULT_CACHE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.WorkerLimit, err = getenvInt("WORKER_LIMIT", 16); err != nil {
		return nil, err
	}

	cfg.ExtractMode = getenvDefault("EXTRACT_MODE", "parallel")
	switch cfg.ExtractMode {
	case "parallel", "sequential":
	default:
		return nil, fmt.Errorf("invalid EXTRACT_MODE %q (allowed: parallel, sequential)", cfg.ExtractMode)
	}

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
