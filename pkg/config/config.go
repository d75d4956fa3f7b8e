package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/pg"
	"github.com/dmitrymomot/flagsync/pkg/redis"
	"github.com/dmitrymomot/flagsync/pkg/transport"
)

// Configuration sources.
const (
	SourceHTTP = "http"
	SourceS3   = "s3"
	SourceFile = "file"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds every knob of a flagsync deployment.
type Config struct {
	Env       string     `env:"APP_ENV" envDefault:"development"`
	LogLevel  slog.Level `env:"FLAGSYNC_LOG_LEVEL" envDefault:"info"`
	LogFormat string     `env:"FLAGSYNC_LOG_FORMAT" envDefault:"json"`

	Source         string        `env:"FLAGSYNC_SOURCE" envDefault:"http"`
	BaseURL        string        `env:"FLAGSYNC_BASE_URL"`
	APIKey         string        `env:"FLAGSYNC_API_KEY"`
	Tenant         string        `env:"FLAGSYNC_TENANT"`
	RequestTimeout time.Duration `env:"FLAGSYNC_REQUEST_TIMEOUT" envDefault:"10s"`
	FilePath       string        `env:"FLAGSYNC_FILE"`
	S3             S3            `envPrefix:"FLAGSYNC_S3_"`

	Namespace         string        `env:"FLAGSYNC_NAMESPACE" envDefault:"default"`
	PollInterval      time.Duration `env:"FLAGSYNC_POLL_INTERVAL" envDefault:"30s"`
	BackoffStep       time.Duration `env:"FLAGSYNC_BACKOFF_STEP" envDefault:"5s"`
	MaxFailures       int           `env:"FLAGSYNC_MAX_FAILURES" envDefault:"10"`
	SnapshotRetention int           `env:"FLAGSYNC_SNAPSHOT_RETENTION" envDefault:"3"`
	ResultCacheSize   int           `env:"FLAGSYNC_RESULT_CACHE_SIZE" envDefault:"1024"`
	NativeDoubles     bool          `env:"FLAGSYNC_NATIVE_DOUBLES"`

	CacheBackend    string `env:"FLAGSYNC_CACHE_BACKEND" envDefault:"memory"`
	SnapshotBackend string `env:"FLAGSYNC_SNAPSHOT_BACKEND" envDefault:"memory"`

	Redis    redis.Config
	Postgres pg.Config
}

// S3 locates the configuration object when Source is "s3".
type S3 struct {
	Bucket          string `env:"BUCKET"`
	Key             string `env:"KEY" envDefault:"flags.json"`
	Region          string `env:"REGION"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Endpoint        string `env:"ENDPOINT"`
	ForcePathStyle  bool   `env:"FORCE_PATH_STYLE"`
}

// Validate reports every invalid field at once, joined with ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}

	switch c.Source {
	case SourceHTTP:
		if c.BaseURL == "" {
			add("FLAGSYNC_BASE_URL is required for the http source")
		}
	case SourceS3:
		if c.S3.Bucket == "" || c.S3.Key == "" || c.S3.Region == "" {
			add("FLAGSYNC_S3_BUCKET, FLAGSYNC_S3_KEY and FLAGSYNC_S3_REGION are required for the s3 source")
		}
	case SourceFile:
		if c.FilePath == "" {
			add("FLAGSYNC_FILE is required for the file source")
		}
	default:
		add("unknown source %q", c.Source)
	}

	if c.Namespace == "" {
		add("namespace must not be empty")
	}
	if c.RequestTimeout <= 0 {
		add("request timeout must be positive")
	}
	if c.PollInterval <= 0 {
		add("poll interval must be positive")
	}
	if c.BackoffStep < 0 {
		add("backoff step must not be negative")
	}
	if c.MaxFailures < 0 {
		add("max failures must not be negative")
	}
	if c.SnapshotRetention < 1 {
		add("snapshot retention must be at least 1")
	}
	if c.ResultCacheSize < 1 {
		add("result cache size must be at least 1")
	}

	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		add("unknown cache backend %q", c.CacheBackend)
	}
	switch c.SnapshotBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.ConnectionString == "" {
			add("PG_CONN_URL is required for the postgres snapshot backend")
		}
	default:
		add("unknown snapshot backend %q", c.SnapshotBackend)
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
}

// HTTPConfig returns the settings of the http source.
func (c Config) HTTPConfig() transport.HTTPConfig {
	return transport.HTTPConfig{
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Tenant:  c.Tenant,
		Timeout: c.RequestTimeout,
	}
}

// S3Config returns the settings of the s3 source.
func (c Config) S3Config() transport.S3Config {
	return transport.S3Config{
		Bucket:         c.S3.Bucket,
		Key:            c.S3.Key,
		Region:         c.S3.Region,
		AccessKeyID:    c.S3.AccessKeyID,
		SecretKey:      c.S3.SecretAccessKey,
		Endpoint:       c.S3.Endpoint,
		ForcePathStyle: c.S3.ForcePathStyle,
	}
}
