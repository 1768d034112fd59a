package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"DualSignal/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string            `yaml:"environment" default:"development" validate:"required"`
	Log         logger.Config     `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Watchlist   []string          `yaml:"watchlist" validate:"required,min=1,dive,required"`
	Timezone    string            `yaml:"timezone" default:"UTC"`
	Feed        FeedConfig        `yaml:"feed"`
	Aggregator  AggregatorConfig  `yaml:"aggregator"`
	Store       StoreConfig       `yaml:"store"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Workers     WorkersConfig     `yaml:"workers"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type FeedConfig struct {
	Provider     string        `yaml:"provider" default:"websocket" validate:"oneof=websocket kafka"`
	APIKey       string        `yaml:"api_key"`
	WebSocketURL string        `yaml:"websocket_url" default:"wss://socket.polygon.io/stocks"`
	Channel      string        `yaml:"channel" default:"AM"`
	PingInterval time.Duration `yaml:"ping_interval" default:"15s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"60s"`
	BufferSize   int           `yaml:"buffer_size" default:"1024" validate:"gt=0"`
	Backoff      struct {
		Initial time.Duration `yaml:"initial" default:"1s"`
		Max     time.Duration `yaml:"max" default:"30s"`
	} `yaml:"backoff"`
	KafkaTopic   string `yaml:"kafka_topic" default:"bars.raw"`
	KafkaGroupID string `yaml:"kafka_group_id" default:"dual-signal-aggregator"`
}

type AggregatorConfig struct {
	Window           time.Duration `yaml:"window" default:"5m"`
	FlushInterval    time.Duration `yaml:"flush_interval" default:"1s"`
	Grace            time.Duration `yaml:"grace" default:"2s"`
	MaxFlushAttempts int           `yaml:"max_flush_attempts" default:"5" validate:"gt=0"`
	MaxBarsPerSecond float64       `yaml:"max_bars_per_second" default:"50"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"5s"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis clickhouse"`
	Redis   struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"dualsignal"`
	} `yaml:"redis"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"dualsignal"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		Table        string        `yaml:"table" default:"objects"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`
}

type KafkaConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Brokers           []string `yaml:"brokers"`
	Compression       string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	RequiredAcks      int      `yaml:"required_acks" default:"-1"`
	WindowClosedTopic string   `yaml:"window_closed_topic" default:"bars.window_closed"`
	Producer          struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		Linger       time.Duration `yaml:"linger" default:"100ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		Workers    int           `yaml:"workers" default:"1"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

type WorkersConfig struct {
	Compute  ComputeConfig  `yaml:"compute"`
	Learning LearningConfig `yaml:"learning"`
}

type ComputeConfig struct {
	Timeout          time.Duration `yaml:"timeout" default:"4m"`
	VolatilityWindow int           `yaml:"volatility_window" default:"20" validate:"gt=1"`
	Epsilon          float64       `yaml:"epsilon" default:"0.0001" validate:"gt=0"`
}

type LearningConfig struct {
	Timeout         time.Duration `yaml:"timeout" default:"10m"`
	MinObservations int           `yaml:"min_observations" default:"20" validate:"gte=12"`
	LookbackDays    int           `yaml:"lookback_days" validate:"gte=0,lte=30"`
	Ridge           float64       `yaml:"ridge" default:"0.001" validate:"gte=0"`
	MAEThreshold    float64       `yaml:"mae_threshold" default:"0.1" validate:"gt=0"`
	MAEStreakTarget int           `yaml:"mae_streak_target" default:"50" validate:"gt=0"`
	R2Threshold     float64       `yaml:"r2_threshold" default:"0.9" validate:"gt=0,lte=1"`
	RunsPerDay      int           `yaml:"runs_per_day" default:"7" validate:"gt=0"`
}

type AggregationConfig struct {
	ReadTimeout time.Duration `yaml:"read_timeout" default:"2s"`
	// CacheTTL caches successful responses; zero disables the cache.
	CacheTTL   time.Duration `yaml:"cache_ttl" default:"5s"`
	CacheStore string        `yaml:"cache_store" default:"memory" validate:"oneof=memory redis"`
}

type SchedulerConfig struct {
	ComputeSpec  string `yaml:"compute_spec" default:"@every 5m"`
	LearningSpec string `yaml:"learning_spec" default:"@every 60m"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse applies defaults, decodes YAML on top of them and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Watchlist = strings.Split(v, ",")
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func readFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(b)
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.normalize()
	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Watchlist))
	for _, s := range c.Watchlist {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("watchlist contains duplicate instrument %q", s)
		}
		seen[s] = struct{}{}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	switch c.Feed.Provider {
	case "websocket":
		if c.Feed.WebSocketURL == "" {
			return fmt.Errorf("feed.websocket_url is required for websocket provider")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for kafka feed provider")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Store.Backend == "clickhouse" && c.Store.ClickHouse.Host == "" {
		return fmt.Errorf("store.clickhouse.host is required for clickhouse backend")
	}
	if c.Aggregator.Window <= 0 || c.Aggregator.FlushInterval <= 0 {
		return fmt.Errorf("aggregator.window and aggregator.flush_interval must be positive")
	}
	if c.Feed.Backoff.Initial <= 0 || c.Feed.Backoff.Max < c.Feed.Backoff.Initial {
		return fmt.Errorf("feed.backoff must satisfy 0 < initial <= max")
	}
	return nil
}

// Location returns the time zone used to derive trading-day keys.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) normalize() {
	out := c.Watchlist[:0]
	for _, s := range c.Watchlist {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	c.Watchlist = out
}
