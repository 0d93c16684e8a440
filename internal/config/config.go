// Package config loads chemcore runtime settings from CHEMCORE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"chemcore/internal/blob"
	"chemcore/internal/core"
	"chemcore/pkg/domain"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "CHEMCORE_"

// Metrics backends.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// Tracing backends.
const (
	TracingNone = "none"
	TracingJSON = "json"
	TracingOTel = "otel"
)

// Config is the full runtime configuration of a dispenser process.
type Config struct {
	Owner           string          `env:"OWNER" envDefault:"chemmaster"`
	Name            string          `env:"NAME" envDefault:"ChemMaster"`
	PillDosageLimit domain.Quantity `env:"PILL_DOSAGE_LIMIT" envDefault:"50"`
	LogLevel        string          `env:"LOG_LEVEL" envDefault:"info"`

	Storage       Storage       `envPrefix:"STORAGE_"`
	Blob          Blob          `envPrefix:"BLOB_"`
	Observability Observability `envPrefix:"OBS_"`
}

// Storage selects the container registry backend.
type Storage struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"chemcore.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
}

// Blob selects where projections are archived. An empty driver disables archiving.
type Blob struct {
	Driver      string `env:"DRIVER"`
	FSRoot      string `env:"FS_ROOT" envDefault:"./chemcore-blobs"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3PathStyle bool   `env:"S3_PATH_STYLE"`
}

// Observability selects metrics and tracing exporters.
type Observability struct {
	Metrics      string `env:"METRICS" envDefault:"expvar"`
	Tracing      string `env:"TRACING" envDefault:"none"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads configuration from the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Owner == "" {
		errs = append(errs, errors.New("owner handle is required"))
	}
	if c.PillDosageLimit.IsZero() {
		errs = append(errs, errors.New("pill dosage limit must be positive"))
	}
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage requires STORAGE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3Bucket == "" {
			errs = append(errs, errors.New("s3 blob driver requires BLOB_S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Observability.Metrics {
	case MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", c.Observability.Metrics))
	}
	switch c.Observability.Tracing {
	case TracingNone, TracingJSON, TracingOTel:
	default:
		errs = append(errs, fmt.Errorf("unknown tracing backend %q", c.Observability.Tracing))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobEnabled reports whether projections should be archived.
func (c Config) BlobEnabled() bool { return c.Blob.Driver != "" }

// BlobConfig converts the blob section for blob.Open.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    c.Blob.S3Bucket,
			Region:    c.Blob.S3Region,
			Endpoint:  c.Blob.S3Endpoint,
			PathStyle: c.Blob.S3PathStyle,
		},
	}
}
