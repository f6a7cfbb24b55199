package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"SentinelX/pkg/logger"
)

type Config struct {
	Environment string           `yaml:"environment" env:"SENTINEL_ENV" default:"development" validate:"required"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	API         APIConfig        `yaml:"api"`
	Views       ViewsConfig      `yaml:"views"`
	Sink        SinkConfig       `yaml:"sink"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Cache       CacheConfig      `yaml:"cache"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"SERVER_PORT" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORS            *bool         `yaml:"cors" default:"true"`
	StreamPing      time.Duration `yaml:"stream_ping" default:"30s"`
}

type LogConfig struct {
	Level       string        `yaml:"level" env:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	Format      string        `yaml:"format" env:"LOG_FORMAT" default:"console" validate:"oneof=json console"`
	Output      string        `yaml:"output" default:"stdout"`
	TimeFormat  string        `yaml:"time_format"`
	DigestTopic string        `yaml:"digest_topic"`
	DigestEvery time.Duration `yaml:"digest_every" default:"30s"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// APIConfig points at the Sentinel-X backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"SENTINEL_API_URL" default:"http://localhost:3000/api" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" env:"SENTINEL_API_TIMEOUT" default:"10s" validate:"gt=0"`
}

// ViewsConfig holds the polling schedule of every view.
type ViewsConfig struct {
	OverviewInterval time.Duration `yaml:"overview_interval" default:"3s" validate:"gt=0"`
	LiveInterval     time.Duration `yaml:"live_interval" default:"5s" validate:"gt=0"`
	ExplorerInterval time.Duration `yaml:"explorer_interval" default:"10s" validate:"gt=0"`
	BlocksLimit      int           `yaml:"blocks_limit" default:"5" validate:"gt=0,lte=100"`
	TxLimit          int           `yaml:"tx_limit" default:"10" validate:"gt=0,lte=100"`
	DefaultAsset     string        `yaml:"default_asset" default:"CELO" validate:"required"`
}

// SinkConfig selects where commit events go.
type SinkConfig struct {
	Type         string        `yaml:"type" env:"SINK" default:"none" validate:"oneof=none kafka clickhouse"`
	BatchSize    int           `yaml:"batch_size" default:"100" validate:"gt=0"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
	Consume      bool          `yaml:"consume" env:"SINK_CONSUME"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic        string   `yaml:"topic" env:"KAFKA_TOPIC" default:"sentinelx.commits"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"500ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"sentinelx-history"`
		Workers    int           `yaml:"workers" default:"2"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" env:"CLICKHOUSE_HOST"`
	Port             int           `yaml:"port" env:"CLICKHOUSE_PORT" default:"9000"`
	Database         string        `yaml:"database" default:"sentinelx"`
	Table            string        `yaml:"table" default:"view_commits"`
	User             string        `yaml:"user" env:"CLICKHOUSE_USER" default:"default"`
	Password         string        `yaml:"password" env:"CLICKHOUSE_PASSWORD"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	// BaselineWindow is how far back the percentage deltas look.
	BaselineWindow time.Duration `yaml:"baseline_window" default:"24h"`
	// Retention drops history rows older than this; zero keeps everything.
	Retention time.Duration `yaml:"retention" default:"720h"`
}

// CacheConfig selects the slot mirror backend.
type CacheConfig struct {
	Type          string        `yaml:"type" env:"CACHE" default:"memory" validate:"oneof=memory redis layered"`
	TTL           time.Duration `yaml:"ttl" default:"5m"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"1000" validate:"gt=0"`
	DropOnUnmount bool          `yaml:"drop_on_unmount"`
	Redis         struct {
		Host     string `yaml:"host" env:"REDIS_HOST" default:"localhost"`
		Port     int    `yaml:"port" env:"REDIS_PORT" default:"6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"sentinelx"`
	} `yaml:"redis"`
}

// RateLimitConfig bounds user actions per client and view.
type RateLimitConfig struct {
	Capacity        float64 `yaml:"capacity" default:"5" validate:"gt=0"`
	RefillPerSecond float64 `yaml:"refill_per_second" default:"1" validate:"gt=0"`
}

var validate = validator.New()

// Default returns a config populated with default values only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML configuration file on top of the defaults. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A missing file is tolerated so the service can run from env alone.
func LoadWithEnv(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Sink.Type {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when sink.type is kafka")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required when sink.type is clickhouse")
		}
	}
	if c.Sink.Consume && (len(c.Kafka.Brokers) == 0 || c.ClickHouse.Host == "") {
		return fmt.Errorf("sink.consume needs both kafka.brokers and clickhouse.host")
	}
	if c.Log.DigestTopic != "" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("log.digest_topic needs kafka.brokers")
	}
	return nil
}

// Enabled dereferences an optional flag defaulting to false.
func Enabled(b *bool) bool {
	return b != nil && *b
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Output:     c.Log.Output,
		TimeFormat: c.Log.TimeFormat,
	}
}

// HistoryEnabled reports whether a ClickHouse history store is configured.
func (c *Config) HistoryEnabled() bool {
	return c.ClickHouse.Host != ""
}
