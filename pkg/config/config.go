// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, RPC, Storage, Indexer, Search, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Storage   StorageConfig   `yaml:"storage"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RPCConfig holds the JSON-over-TCP link service settings.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Storage backend kinds.
const (
	StorageMemory   = "memory"
	StorageLocal    = "local"
	StorageS3       = "s3"
	StorageMinio    = "minio"
	StoragePebble   = "pebble"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// StorageConfig selects where committed segments and the index manifest
// live. Path is a directory for local/pebble, a file for sqlite, and unused
// for memory, s3, minio and postgres.
type StorageConfig struct {
	Kind        string `yaml:"kind"`
	Path        string `yaml:"path"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Endpoint    string `yaml:"endpoint"`
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"accessKey"`
	SecretKey   string `yaml:"secretKey"`
	UseSSL      bool   `yaml:"useSSL"`
	Table       string `yaml:"table"`
	Compression string `yaml:"compression"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	LinkIngest      string `yaml:"linkIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// CacheConfig controls the search result cache. Backend is "none", "lru"
// or "redis".
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// IndexerConfig controls text analysis, snapshot reloading and how often
// buffered links are committed.
type IndexerConfig struct {
	Analyzer        string        `yaml:"analyzer"`
	ReloadPolicy    string        `yaml:"reloadPolicy"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	MaxBufferedDocs int           `yaml:"maxBufferedDocs"`
}

// SearchConfig controls query result limits. MaxConcurrent caps searches
// in flight; 0 leaves them unbounded.
type SearchConfig struct {
	MaxResults    int `yaml:"maxResults"`
	DefaultLimit  int `yaml:"defaultLimit"`
	MaxConcurrent int `yaml:"maxConcurrent"`
}

// RateLimitConfig controls per-client request throttling on the HTTP API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development:
// an in-memory index, no cache, no Kafka.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    ":50051",
		},
		Storage: StorageConfig{
			Kind:        StorageMemory,
			Path:        "./data",
			Prefix:      "bookmarks/",
			Region:      "us-east-1",
			Table:       "index_blobs",
			Compression: "zstd",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bookmarks",
			User:            "bookmarks",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "bookmark-search",
			Topics: KafkaTopics{
				LinkIngest:      "link-ingest",
				AnalyticsEvents: "search-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Cache: CacheConfig{
			Backend: "none",
			Size:    1024,
			TTL:     60 * time.Second,
		},
		Indexer: IndexerConfig{
			Analyzer:        "simple",
			ReloadPolicy:    "on-commit",
			MaxBufferedDocs: 1000,
		},
		Search: SearchConfig{
			MaxResults:    100,
			DefaultLimit:  10,
			MaxConcurrent: 64,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Kind {
	case StorageMemory, StorageLocal, StorageS3, StorageMinio,
		StoragePebble, StoragePostgres, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage kind %q", c.Storage.Kind)
	}
	switch c.Storage.Kind {
	case StorageLocal, StoragePebble, StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage kind %q requires a path", c.Storage.Kind)
		}
	case StorageS3, StorageMinio:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage kind %q requires a bucket", c.Storage.Kind)
		}
	}
	switch c.Cache.Backend {
	case "", "none", "lru", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search limits invalid: defaultLimit=%d maxResults=%d",
			c.Search.DefaultLimit, c.Search.MaxResults)
	}
	return nil
}

// applyEnvOverrides reads BS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BS_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("BS_STORAGE_KIND"); v != "" {
		cfg.Storage.Kind = v
	}
	if v := os.Getenv("BS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("BS_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("BS_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("BS_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("BS_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("BS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BS_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("BS_INDEXER_ANALYZER"); v != "" {
		cfg.Indexer.Analyzer = v
	}
	if v := os.Getenv("BS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
