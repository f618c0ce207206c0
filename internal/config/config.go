// Package config resolves process settings in three layers: built-in
// defaults, an optional YAML file, then STATEFACTS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"statefacts/internal/blob"
	"statefacts/internal/core"
	"statefacts/internal/logging"
	"statefacts/internal/telemetry"
	"statefacts/pkg/domain"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STATEFACTS_"

// Config is the full process configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Blob      BlobConfig      `yaml:"blob"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Facts     FactsConfig     `yaml:"facts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
	// WriteRateLimit is the sustained rate of mutating requests per second;
	// zero disables limiting.
	WriteRateLimit  float64       `yaml:"write_rate_limit" env:"WRITE_RATE_LIMIT"`
	WriteRateBurst  int           `yaml:"write_rate_burst" env:"WRITE_RATE_BURST"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level     string `yaml:"level" env:"LOG_LEVEL"`
	Format    string `yaml:"format" env:"LOG_FORMAT"`
	AddSource bool   `yaml:"add_source" env:"LOG_ADD_SOURCE"`
}

type StorageConfig struct {
	Driver          string        `yaml:"driver" env:"STORAGE_DRIVER"`
	SQLitePath      string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN     string        `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	MongoURI        string        `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase   string        `yaml:"mongo_database" env:"MONGO_DATABASE"`
	MongoCollection string        `yaml:"mongo_collection" env:"MONGO_COLLECTION"`
	BadgerPath      string        `yaml:"badger_path" env:"BADGER_PATH"`
	Timeout         time.Duration `yaml:"timeout" env:"STORE_TIMEOUT"`
}

type BlobConfig struct {
	Driver string       `yaml:"driver" env:"BLOB_DRIVER"`
	FSRoot string       `yaml:"fs_root" env:"BLOB_FS_ROOT"`
	S3     BlobS3Config `yaml:"s3"`
}

type BlobS3Config struct {
	Bucket          string `yaml:"bucket" env:"BLOB_S3_BUCKET"`
	Region          string `yaml:"region" env:"BLOB_S3_REGION"`
	Endpoint        string `yaml:"endpoint" env:"BLOB_S3_ENDPOINT"`
	PathStyle       bool   `yaml:"path_style" env:"BLOB_S3_PATH_STYLE"`
	AccessKeyID     string `yaml:"access_key_id" env:"BLOB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"BLOB_S3_SECRET_ACCESS_KEY"`
}

type CatalogConfig struct {
	// Key names a catalog JSON blob; empty uses the embedded dataset.
	Key string `yaml:"key" env:"CATALOG_KEY"`
}

type FactsConfig struct {
	Disabled       []string `yaml:"disabled" env:"FACTS_DISABLED" envSeparator:","`
	Suppressed     []string `yaml:"suppressed" env:"FACTS_SUPPRESSED" envSeparator:","`
	SuppressInBulk bool     `yaml:"suppress_in_bulk" env:"FACTS_SUPPRESS_IN_BULK"`
}

type TelemetryConfig struct {
	Metrics string `yaml:"metrics" env:"METRICS_EXPORTER"`
	Traces  string `yaml:"traces" env:"TRACE_EXPORTER"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":3000",
			WriteRateLimit:  50,
			WriteRateBurst:  100,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: string(logging.FormatText)},
		Storage: StorageConfig{
			Driver:          string(core.StorageSQLite),
			SQLitePath:      "./data/statefacts.db",
			MongoDatabase:   "statefacts",
			MongoCollection: "states",
			BadgerPath:      "./data/badger",
			Timeout:         core.DefaultStoreTimeout,
		},
		Blob: BlobConfig{
			Driver: string(blob.DriverFilesystem),
			FSRoot: "./data/blobs",
			S3:     BlobS3Config{Region: "us-east-1"},
		},
		Facts: FactsConfig{
			Disabled:   append([]string(nil), domain.DefaultDisabledCodes...),
			Suppressed: append([]string(nil), domain.DefaultSuppressedCodes...),
		},
		Telemetry: TelemetryConfig{Metrics: telemetry.MetricsPrometheus, Traces: telemetry.TracesNone},
	}
}

// Load applies the YAML file at path (skipped when empty) and the
// environment on top of the defaults, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if c.HTTP.WriteRateLimit < 0 {
		errs = append(errs, errors.New("write rate limit must not be negative"))
	}
	if c.HTTP.WriteRateLimit > 0 && c.HTTP.WriteRateBurst < 1 {
		errs = append(errs, errors.New("write rate burst must be at least 1 when limiting"))
	}
	driver := core.StorageDriver(c.Storage.Driver)
	switch {
	case !driver.Valid():
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	case driver == core.StorageMongo && c.Storage.MongoURI == "":
		errs = append(errs, errors.New("mongo uri is required for the mongo driver"))
	case driver == core.StorageBadger && c.Storage.BadgerPath == "":
		errs = append(errs, errors.New("badger path is required for the badger driver"))
	}
	if c.Storage.Timeout <= 0 {
		errs = append(errs, errors.New("store timeout must be positive"))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 bucket is required for the s3 blob driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	for _, code := range append(append([]string(nil), c.Facts.Disabled...), c.Facts.Suppressed...) {
		if n := domain.NormalizeCode(code); n != "" && !domain.ValidCodeShape(n) {
			errs = append(errs, fmt.Errorf("invalid state code %q in facts policy", code))
		}
	}
	switch c.Telemetry.Metrics {
	case telemetry.MetricsPrometheus, telemetry.MetricsExpvar, telemetry.MetricsNone:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q", c.Telemetry.Metrics))
	}
	switch c.Telemetry.Traces {
	case telemetry.TracesNone, telemetry.TracesJSON, telemetry.TracesOTel:
	default:
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.Telemetry.Traces))
	}
	return errors.Join(errs...)
}

// LoggingConfig converts the log section.
func (c Config) LoggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	format, _ := logging.ParseFormat(c.Log.Format)
	return logging.Config{Level: level, Format: format, AddSource: c.Log.AddSource}
}

// StorageConfig converts the storage section.
func (c Config) StorageConfig() core.StorageConfig {
	s := c.Storage
	return core.StorageConfig{
		Driver:          core.StorageDriver(s.Driver),
		SQLitePath:      s.SQLitePath,
		PostgresDSN:     s.PostgresDSN,
		MongoURI:        s.MongoURI,
		MongoDatabase:   s.MongoDatabase,
		MongoCollection: s.MongoCollection,
		BadgerPath:      s.BadgerPath,
	}
}

// BlobConfig converts the blob section.
func (c Config) BlobConfig() blob.Config {
	s3 := c.Blob.S3
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			PathStyle:       s3.PathStyle,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
		},
	}
}

// Policy builds the fun-fact policy.
func (c Config) Policy() domain.Policy {
	return domain.Policy{
		Disabled:       domain.NewCodeSet(c.Facts.Disabled...),
		Suppressed:     domain.NewCodeSet(c.Facts.Suppressed...),
		SuppressInBulk: c.Facts.SuppressInBulk,
	}
}

// TelemetryConfig converts the telemetry section.
func (c Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{ServiceName: "statefacts", Metrics: c.Telemetry.Metrics, Traces: c.Telemetry.Traces}
}
