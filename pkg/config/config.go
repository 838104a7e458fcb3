package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"RoundPull/internal/services/ensemble"
	applogger "RoundPull/pkg/logger"
	xutil "RoundPull/pkg/util"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"

	LedgerFile  = "file"
	LedgerRedis = "redis"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Log         applogger.Config `yaml:"log"`
	Backend     BackendConfig    `yaml:"backend"`
	Feed        FeedConfig       `yaml:"feed"`
	Engine      ensemble.Config  `yaml:"engine"`
	Ledger      LedgerConfig     `yaml:"ledger"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Sessions    SessionsConfig   `yaml:"sessions"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	CORS            bool          `yaml:"cors" default:"true"`
	HistoryCacheTTL time.Duration `yaml:"history_cache_ttl" default:"30s"`
}

// BackendConfig selects where accepted rounds and predictions are routed.
type BackendConfig struct {
	Type string `yaml:"type" default:"none"`
}

type FeedConfig struct {
	URL          string            `yaml:"url"`
	Interval     time.Duration     `yaml:"interval" default:"2s"`
	Timeout      time.Duration     `yaml:"timeout" default:"10s"`
	StallAfter   time.Duration     `yaml:"stall_after" default:"60s"`
	Retries      int               `yaml:"retries" default:"2"`
	RetryBackoff time.Duration     `yaml:"retry_backoff" default:"500ms"`
	Headers      map[string]string `yaml:"headers"`
}

type LedgerConfig struct {
	Store string        `yaml:"store" default:"file"`
	Path  string        `yaml:"path" default:"data/ledger.json"`
	Key   string        `yaml:"key" default:"ledger"`
	TTL   time.Duration `yaml:"ttl" default:"0s"`
	// RestoreLimit caps rounds pulled from ClickHouse when the ledger store is empty.
	RestoreLimit int `yaml:"restore_limit" default:"1000"`
}

type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`
	RoundsTopic      string   `yaml:"rounds_topic" default:"roundpull.rounds"`
	PredictionsTopic string   `yaml:"predictions_topic" default:"roundpull.predictions"`
	RequiredAcks     int      `yaml:"required_acks" default:"1"`
	Compression      string   `yaml:"compression" default:"snappy"`
	Producer         struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled"`
		GroupID    string        `yaml:"group_id" default:"roundpull-archiver"`
		Workers    int           `yaml:"workers" default:"2"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"roundpull"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

// RedisConfig enables the shared cache. An empty Addr keeps everything in process.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix" default:"roundpull"`
	PoolSize    int           `yaml:"pool_size" default:"10"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
}

type SessionsConfig struct {
	MaxLevel int           `yaml:"max_level" default:"5"`
	TTL      time.Duration `yaml:"ttl" default:"24h"`
}

// Load reads a YAML file and applies defaults. It does not validate.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse fills defaults from `default` tags, then decodes YAML over them,
// so an explicit `false` or `0` in the file is kept.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML, applies environment overrides and validates.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("ROUNDPULL_FEED_URL"); ok && v != "" {
		c.Feed.URL = v
	}
	if v, ok := lookup("BACKEND"); ok && v != "" {
		c.Backend.Type = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = xutil.SplitCSV(v)
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("LEDGER_PATH"); ok && v != "" {
		c.Ledger.Path = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if !strings.HasPrefix(c.Feed.URL, "http://") && !strings.HasPrefix(c.Feed.URL, "https://") {
		return fmt.Errorf("feed.url must be http(s), got '%s'", c.Feed.URL)
	}
	if c.Feed.Interval <= 0 || c.Feed.Timeout <= 0 {
		return fmt.Errorf("feed.interval and feed.timeout must be positive")
	}
	if c.Feed.StallAfter <= c.Feed.Interval {
		return fmt.Errorf("feed.stall_after (%s) must exceed feed.interval (%s)", c.Feed.StallAfter, c.Feed.Interval)
	}

	switch c.Backend.Type {
	case BackendNone:
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty with backend '%s'", BackendKafka)
		}
		if c.Kafka.RoundsTopic == "" {
			return fmt.Errorf("kafka.rounds_topic is required")
		}
	case BackendClickHouse:
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required with backend '%s'", BackendClickHouse)
		}
	default:
		return fmt.Errorf("backend.type must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.consumer.enabled requires kafka.brokers")
	}
	if c.Log.Collect && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("log.collect requires kafka.brokers")
	}

	switch c.Ledger.Store {
	case LedgerFile:
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for the file store")
		}
	case LedgerRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("ledger.store 'redis' requires redis.addr")
		}
	default:
		return fmt.Errorf("ledger.store must be 'file' or 'redis', got '%s'", c.Ledger.Store)
	}

	if c.Sessions.MaxLevel < 1 {
		return fmt.Errorf("sessions.max_level must be positive, got %d", c.Sessions.MaxLevel)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// EngineOptions returns the ensemble policy. Defaults were already applied by Parse.
func (c *Config) EngineOptions() ensemble.Config {
	return c.Engine
}
