package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Minute, cfg.Engine.LockTTL)
	assert.Equal(t, 50, cfg.Engine.MaxRevisions)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, MetricsPrometheus, cfg.Observe.Metrics)
	assert.Empty(t, cfg.Observe.TraceFile)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFromEnv(envMap(map[string]string{
		"BINMAP_STORAGE_DRIVER":     "postgres",
		"BINMAP_POSTGRES_DSN":       "postgres://db/binmap",
		"BINMAP_BLOB_DRIVER":        "s3",
		"BINMAP_BLOB_S3_BUCKET":     "images",
		"BINMAP_BLOB_S3_PATH_STYLE": "true",
		"BINMAP_REDIS_ADDR":         "localhost:6379",
		"BINMAP_REDIS_DB":           "2",
		"BINMAP_LOCK_TTL":           "300000",
		"BINMAP_MAX_REVISIONS":      "10",
		"BINMAP_LOG_LEVEL":          "  ",
		"BINMAP_METRICS":            "expvar",
		"BINMAP_TRACE_FILE":         "/var/log/binmap/trace.jsonl",
	}))
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://db/binmap", cfg.Storage.PostgresDSN)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 5*time.Minute, cfg.Engine.LockTTL)
	assert.Equal(t, 10, cfg.Engine.MaxRevisions)
	assert.Equal(t, "info", cfg.Log.Level, "blank values are ignored")
	assert.Equal(t, MetricsExpvar, cfg.Observe.Metrics)
	assert.Equal(t, "/var/log/binmap/trace.jsonl", cfg.Observe.TraceFile)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvReportsBadValues(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFromEnv(envMap(map[string]string{
		"BINMAP_REDIS_DB":           "two",
		"BINMAP_BLOB_S3_PATH_STYLE": "maybe",
		"BINMAP_LOCK_TTL":           "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BINMAP_REDIS_DB")
	assert.Contains(t, err.Error(), "BINMAP_BLOB_S3_PATH_STYLE")
	assert.Contains(t, err.Error(), "BINMAP_LOCK_TTL")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "mongo"
	cfg.Blob.Driver = "s3"
	cfg.Engine.LockTTL = 0
	cfg.Engine.MaxRevisions = 0
	cfg.Observe.Metrics = "statsd"
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"storage driver", "BINMAP_BLOB_S3_BUCKET", "lock ttl", "max revisions", "metrics exporter"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
storage:
  driver: memory
engine:
  lock_ttl: 2m
  max_revisions: 20
identity:
  users_file: users.yaml
`), 0o600))
	t.Setenv("BINMAP_HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr, "environment wins over file")
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Engine.LockTTL)
	assert.Equal(t, 20, cfg.Engine.MaxRevisions)
	assert.Equal(t, "users.yaml", cfg.Identity.UsersFile)
	assert.Equal(t, "fs", cfg.Blob.Driver, "unset sections keep defaults")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse config")
}
