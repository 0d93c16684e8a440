package config

import (
	"log/slog"
	"strings"
	"testing"

	"chemcore/internal/blob"
	"chemcore/internal/core"
	"chemcore/pkg/domain"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Owner != "chemmaster" || cfg.Name != "ChemMaster" {
		t.Fatalf("unexpected identity %+v", cfg)
	}
	if cfg.PillDosageLimit != domain.DefaultPillDosageLimit {
		t.Fatalf("unexpected dosage limit %s", cfg.PillDosageLimit)
	}
	opts := cfg.StorageOptions()
	if opts.Driver != core.StorageSQLite || opts.SQLitePath != "chemcore.db" {
		t.Fatalf("unexpected storage %+v", opts)
	}
	if cfg.BlobEnabled() {
		t.Fatalf("archiving should be off by default")
	}
	if cfg.Observability.Metrics != MetricsExpvar || cfg.Observability.Tracing != TracingNone {
		t.Fatalf("unexpected observability %+v", cfg.Observability)
	}
	if level, err := cfg.SlogLevel(); err != nil || level != slog.LevelInfo {
		t.Fatalf("unexpected level %v / %v", level, err)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"CHEMCORE_OWNER":                "lab-7",
		"CHEMCORE_PILL_DOSAGE_LIMIT":    "12.5",
		"CHEMCORE_LOG_LEVEL":            "debug",
		"CHEMCORE_STORAGE_DRIVER":       "postgres",
		"CHEMCORE_STORAGE_POSTGRES_DSN": "postgres://chem@db/chem",
		"CHEMCORE_BLOB_DRIVER":          "s3",
		"CHEMCORE_BLOB_S3_BUCKET":       "projections",
		"CHEMCORE_BLOB_S3_ENDPOINT":     "http://minio:9000",
		"CHEMCORE_BLOB_S3_PATH_STYLE":   "true",
		"CHEMCORE_OBS_METRICS":          "prometheus",
		"CHEMCORE_OBS_TRACING":          "otel",
		"CHEMCORE_OBS_OTEL_ENDPOINT":    "http://collector:4318",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Owner != "lab-7" || cfg.PillDosageLimit != domain.MustParseQuantity("12.5") {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Fatalf("unexpected level %v", level)
	}
	if opts := cfg.StorageOptions(); opts.Driver != core.StoragePostgres || opts.PostgresDSN != "postgres://chem@db/chem" {
		t.Fatalf("unexpected storage %+v", opts)
	}
	bc := cfg.BlobConfig()
	if !cfg.BlobEnabled() || bc.Driver != blob.DriverS3 || bc.S3.Bucket != "projections" || !bc.S3.PathStyle || bc.S3.Region != "us-east-1" {
		t.Fatalf("unexpected blob config %+v", bc)
	}
	if cfg.Observability.OTelEndpoint != "http://collector:4318" {
		t.Fatalf("unexpected otel endpoint %q", cfg.Observability.OTelEndpoint)
	}
}

func TestLoadFromRejectsInvalidSettings(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"CHEMCORE_STORAGE_DRIVER":    "postgres",
		"CHEMCORE_BLOB_DRIVER":       "s3",
		"CHEMCORE_OBS_METRICS":       "statsd",
		"CHEMCORE_OBS_TRACING":       "zipkin",
		"CHEMCORE_LOG_LEVEL":         "chatty",
		"CHEMCORE_PILL_DOSAGE_LIMIT": "0",
	})
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"POSTGRES_DSN", "BLOB_S3_BUCKET", "statsd", "zipkin", "log level", "dosage"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadFromRejectsMalformedValues(t *testing.T) {
	if _, err := LoadFrom(map[string]string{"CHEMCORE_PILL_DOSAGE_LIMIT": "lots"}); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := LoadFrom(map[string]string{"CHEMCORE_STORAGE_DRIVER": "mongo"}); err == nil || !strings.Contains(err.Error(), "mongo") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestLoadReadsProcessEnvironment(t *testing.T) {
	t.Setenv("CHEMCORE_OWNER", "from-env")
	t.Setenv("CHEMCORE_STORAGE_DRIVER", "memory")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Owner != "from-env" || cfg.StorageOptions().Driver != core.StorageMemory {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
