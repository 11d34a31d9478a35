package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NullVoxPopuli/cardstack/internal/realm"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "card_records", cfg.Store.Table)
	assert.Equal(t, CacheNone, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, SinkNone, cfg.Artifacts.Sink)
	assert.Equal(t, 1024, cfg.Artifacts.CacheSize)
	assert.Equal(t, "localhost:3000", cfg.Server.Address())
	assert.Equal(t, 8, cfg.Index.FetchConcurrency)
	assert.Empty(t, cfg.Realms)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	content := `
log:
  level: debug
  format: json
store:
  driver: sqlite3
  dsn: file:cards.db
cache:
  backend: redis
  ttl: 30s
  redis:
    addr: redis:6379
artifacts:
  sink: file
  dir: build/cards
server:
  host: 0.0.0.0
  port: 8080
realms:
  - repository: local-hub
    directory: ./cards
  - repository: shared
    directory: ./shared
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cardhub.yaml"), []byte(content), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DriverSQLite3, cfg.Store.Driver)
	assert.Equal(t, "file:cards.db", cfg.Store.DSN)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "build/cards", cfg.Artifacts.Dir)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, []realm.Realm{
		{Repository: "local-hub", Directory: "./cards"},
		{Repository: "shared", Directory: "./shared"},
	}, cfg.Realms)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CARDHUB_SERVER_PORT", "9090")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CARDHUB_LOG_LEVEL=warn\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CARDHUB_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level, ".env values are loaded")
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load("missing.yaml")
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cardhub.yaml"), []byte("store:\n  driver: pgx\n"), 0o644))

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:     StoreConfig{Driver: DriverMemory},
			Cache:     CacheConfig{Backend: CacheNone},
			Artifacts: ArtifactConfig{Sink: SinkNone},
			Server:    ServerConfig{Host: "localhost", Port: 3000},
			Index:     IndexConfig{FetchConcurrency: 4},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"unknown sink", func(c *Config) { c.Artifacts.Sink = "ftp" }, "artifacts.sink"},
		{"s3 without bucket", func(c *Config) { c.Artifacts.Sink = SinkS3; c.Artifacts.S3.Endpoint = "s3:9000" }, "artifacts.s3"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad concurrency", func(c *Config) { c.Index.FetchConcurrency = 0 }, "fetch_concurrency"},
		{"duplicate realm", func(c *Config) {
			c.Realms = []realm.Realm{{Repository: "a", Directory: "x"}, {Repository: "a", Directory: "y"}}
		}, "configured twice"},
		{"incomplete realm", func(c *Config) { c.Realms = []realm.Realm{{Repository: "a"}} }, "realms[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
