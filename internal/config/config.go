// Package config loads cardhub configuration from cardhub.yaml, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/NullVoxPopuli/cardstack/internal/realm"
)

// EnvPrefix prefixes every environment override, for example
// CARDHUB_STORE_DSN.
const EnvPrefix = "CARDHUB"

// Store drivers.
const (
	DriverMemory  = "memory"
	DriverSQLite3 = "sqlite3"
	DriverPgx     = "pgx"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Artifact sinks.
const (
	SinkNone = "none"
	SinkFile = "file"
	SinkS3   = "s3"
)

// Config is the cardhub configuration.
type Config struct {
	Log       LogConfig      `mapstructure:"log"`
	Store     StoreConfig    `mapstructure:"store"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Artifacts ArtifactConfig `mapstructure:"artifacts"`
	Server    ServerConfig   `mapstructure:"server"`
	Index     IndexConfig    `mapstructure:"index"`
	Realms    []realm.Realm  `mapstructure:"realms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// CacheConfig configures the record cache in front of the store.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig locates the redis server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ArtifactConfig configures card artifact builds.
type ArtifactConfig struct {
	Sink      string   `mapstructure:"sink"`
	Dir       string   `mapstructure:"dir"`
	CacheSize int      `mapstructure:"cache_size"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config configures the S3 artifact sink.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IndexConfig tunes the indexer.
type IndexConfig struct {
	FetchConcurrency int `mapstructure:"fetch_concurrency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "card_records")
	v.SetDefault("cache.backend", CacheNone)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "cardhub:")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("artifacts.sink", SinkNone)
	v.SetDefault("artifacts.dir", ".cardhub/artifacts")
	v.SetDefault("artifacts.cache_size", 1024)
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.region", "")
	v.SetDefault("artifacts.s3.access_key", "")
	v.SetDefault("artifacts.s3.secret_key", "")
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.prefix", "")
	v.SetDefault("artifacts.s3.use_ssl", false)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("index.fetch_concurrency", 8)
}

// Load reads the configuration. With an empty path cardhub.yaml (or .yml) is
// looked up in the working directory and may be absent; an explicit path
// must exist. A .env file in the working directory is loaded first and does
// not override variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cardhub")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for unsupported values.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite3, DriverPgx:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}

	switch c.Artifacts.Sink {
	case SinkNone:
	case SinkFile:
		if c.Artifacts.Dir == "" {
			return errors.New("artifacts.dir is required for the file sink")
		}
	case SinkS3:
		if c.Artifacts.S3.Endpoint == "" || c.Artifacts.S3.Bucket == "" {
			return errors.New("artifacts.s3.endpoint and artifacts.s3.bucket are required for the s3 sink")
		}
	default:
		return fmt.Errorf("unknown artifacts.sink %q", c.Artifacts.Sink)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Index.FetchConcurrency <= 0 {
		return fmt.Errorf("index.fetch_concurrency must be positive, got: %d", c.Index.FetchConcurrency)
	}

	seen := make(map[string]bool, len(c.Realms))
	for i, r := range c.Realms {
		if r.Repository == "" || r.Directory == "" {
			return fmt.Errorf("realms[%d] needs a repository and a directory", i)
		}
		if seen[r.Repository] {
			return fmt.Errorf("realm repository %q is configured twice", r.Repository)
		}
		seen[r.Repository] = true
	}
	return nil
}
