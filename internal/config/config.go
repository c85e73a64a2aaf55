// Package config loads binmap settings from an optional YAML file and
// BINMAP_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"binmap/pkg/domain"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "BINMAP"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Metrics exporters.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

// Config is the full process configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Blob     BlobConfig     `yaml:"blob"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   EngineConfig   `yaml:"engine"`
	Identity IdentityConfig `yaml:"identity"`
	Observe  ObserveConfig  `yaml:"observability"`
}

// HTTPConfig configures the RPC listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects the blob backend used for background images.
type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config holds S3 / MinIO settings. Credentials fall back to the default
// AWS chain when left empty.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// RedisConfig configures the layout event stream. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// EngineConfig tunes the lock protocol and the revision ledger.
type EngineConfig struct {
	LockTTL      time.Duration `yaml:"lock_ttl"`
	MaxRevisions int           `yaml:"max_revisions"`
}

// IdentityConfig points at the static user directory.
type IdentityConfig struct {
	UsersFile string `yaml:"users_file"`
}

// ObserveConfig selects the metrics exporter served on /metrics and an
// optional JSON lines file receiving one entry per finished operation.
type ObserveConfig struct {
	Metrics   string `yaml:"metrics"`
	TraceFile string `yaml:"trace_file"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:  LogConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{
			Driver:     StorageSQLite,
			SQLitePath: "binmap.db",
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "./blobdata",
			S3:     S3Config{Region: "us-east-1"},
		},
		Redis: RedisConfig{Stream: "binmap:layout-events", MaxLen: 10000},
		Engine: EngineConfig{
			LockTTL:      domain.DefaultLockExpiration,
			MaxRevisions: domain.DefaultMaxRevisions,
		},
		Observe: ObserveConfig{Metrics: MetricsPrometheus},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.LoadFromEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// LoadFromEnv overlays BINMAP_* variables onto c.
func (c *Config) LoadFromEnv(lookup LookupFunc) error {
	env := envReader{lookup: lookup}
	env.str("HTTP_ADDR", &c.HTTP.Addr)
	env.duration("HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	env.str("LOG_LEVEL", &c.Log.Level)
	env.str("LOG_FORMAT", &c.Log.Format)
	env.str("STORAGE_DRIVER", &c.Storage.Driver)
	env.str("SQLITE_PATH", &c.Storage.SQLitePath)
	env.str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	env.str("BLOB_DRIVER", &c.Blob.Driver)
	env.str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	env.str("BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	env.str("BLOB_S3_REGION", &c.Blob.S3.Region)
	env.str("BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	env.boolean("BLOB_S3_PATH_STYLE", &c.Blob.S3.PathStyle)
	env.str("BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	env.str("BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	env.str("REDIS_ADDR", &c.Redis.Addr)
	env.str("REDIS_PASSWORD", &c.Redis.Password)
	env.integer("REDIS_DB", &c.Redis.DB)
	env.str("REDIS_STREAM", &c.Redis.Stream)
	env.duration("LOCK_TTL", &c.Engine.LockTTL)
	env.integer("MAX_REVISIONS", &c.Engine.MaxRevisions)
	env.str("USERS_FILE", &c.Identity.UsersFile)
	env.str("METRICS", &c.Observe.Metrics)
	env.str("TRACE_FILE", &c.Observe.TraceFile)
	return errors.Join(env.errs...)
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("%s_BLOB_S3_BUCKET required for s3 driver", EnvPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Observe.Metrics {
	case MetricsPrometheus, MetricsExpvar:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q", c.Observe.Metrics))
	}
	if c.Engine.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("lock ttl must be positive, got %s", c.Engine.LockTTL))
	}
	if c.Engine.MaxRevisions < 1 {
		errs = append(errs, fmt.Errorf("max revisions must be at least 1, got %d", c.Engine.MaxRevisions))
	}
	return errors.Join(errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + "_" + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s_%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = n
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s_%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = b
}

// duration accepts Go duration strings or a bare integer of milliseconds.
func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s_%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = d
}
