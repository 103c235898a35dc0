// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// counter itself and for every surface around it (HTTP server, PostgreSQL
// report store, Redis result cache, Kafka worker, logging and metrics).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Counter  CounterConfig  `yaml:"counter"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RateLimit is the number of
// analysis requests a client may make per minute; zero disables limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	MaxUploadSize   int64         `yaml:"maxUploadSize"`
	RateLimit       int           `yaml:"rateLimit"`
}

// PostgresConfig holds PostgreSQL connection parameters. Reports are only
// persisted when Enabled is set.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds Kafka broker and topic settings. The worker always
// uses Kafka; the HTTP server only accepts jobs when Enabled is set.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalysisRequests string `yaml:"analysisRequests"`
	AnalysisResults  string `yaml:"analysisResults"`
}

// RedisConfig holds Redis connection and caching parameters. Results are only
// cached when Enabled is set.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CounterConfig controls how documents are segmented, identified and
// compared against the translation memory.
type CounterConfig struct {
	MemoryPath     string `yaml:"memoryPath"`
	Segmentation   string `yaml:"segmentation"`
	Characters     string `yaml:"characters"`
	Normalization  string `yaml:"normalization"`
	Concurrency    int    `yaml:"concurrency"`
	MaxFileSize    int64  `yaml:"maxFileSize"`
	SkipTranslated bool   `yaml:"skipTranslated"`
	Combined       bool   `yaml:"combined"`
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

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
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

// Default returns a Config with defaults suitable for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  45 * time.Second,
			MaxUploadSize:   32 << 20,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "filecount",
			User:            "filecount",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "filecount-workers",
			Topics: KafkaTopics{
				AnalysisRequests: "analysis-requests",
				AnalysisResults:  "analysis-results",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Counter: CounterConfig{
			Segmentation:   "sentence",
			Characters:     "codepoints",
			Normalization:  "trim",
			Concurrency:    runtime.GOMAXPROCS(0),
			MaxFileSize:    64 << 20,
			SkipTranslated: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects values the counter cannot run with.
func (c *Config) Validate() error {
	switch c.Counter.Segmentation {
	case "sentence", "section":
	default:
		return fmt.Errorf("counter.segmentation: unknown mode %q", c.Counter.Segmentation)
	}
	switch c.Counter.Characters {
	case "codepoints", "graphemes":
	default:
		return fmt.Errorf("counter.characters: unknown mode %q", c.Counter.Characters)
	}
	switch c.Counter.Normalization {
	case "none", "trim", "nfc":
	default:
		return fmt.Errorf("counter.normalization: unknown mode %q", c.Counter.Normalization)
	}
	if c.Counter.Concurrency < 1 {
		return fmt.Errorf("counter.concurrency must be positive, got %d", c.Counter.Concurrency)
	}
	if c.Counter.MaxFileSize < 0 {
		return fmt.Errorf("counter.maxFileSize must not be negative, got %d", c.Counter.MaxFileSize)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("server.maxUploadSize must be positive, got %d", c.Server.MaxUploadSize)
	}
	return nil
}

// applyEnvOverrides reads FC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FC_SERVER_MAX_UPLOAD_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxUploadSize = n
		}
	}
	if v := os.Getenv("FC_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("FC_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("FC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FC_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("FC_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("FC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FC_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("FC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FC_COUNTER_MEMORY_PATH"); v != "" {
		cfg.Counter.MemoryPath = v
	}
	if v := os.Getenv("FC_COUNTER_SEGMENTATION"); v != "" {
		cfg.Counter.Segmentation = v
	}
	if v := os.Getenv("FC_COUNTER_CHARACTERS"); v != "" {
		cfg.Counter.Characters = v
	}
	if v := os.Getenv("FC_COUNTER_NORMALIZATION"); v != "" {
		cfg.Counter.Normalization = v
	}
	if v := os.Getenv("FC_COUNTER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Counter.Concurrency = n
		}
	}
	if v := os.Getenv("FC_COUNTER_SKIP_TRANSLATED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Counter.SkipTranslated = b
		}
	}
	if v := os.Getenv("FC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
