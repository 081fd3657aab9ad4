package domain

import (
	"os"
	"strconv"
	"time"
)

// Config holds the complete fakeguard configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Scoring engine settings
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// AsyncWorker enables bus-driven analysis of uploaded datasets
	AsyncWorker bool `json:"asyncWorker"`

	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	ReadTimeout   int    `json:"readTimeout"`  // seconds
	WriteTimeout  int    `json:"writeTimeout"` // seconds
	MaxUploadSize int64  `json:"maxUploadSize"`
}

// ScoringConfig holds batch scoring settings.
type ScoringConfig struct {
	// Workers bounds the per-record fan-out during batch scoring.
	// 1 scores strictly sequentially.
	Workers int `json:"workers"`

	// ReportTTL is how long the last analysis stays retrievable.
	ReportTTL time.Duration `json:"reportTtl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          3000,
			ReadTimeout:   30,
			WriteTimeout:  30,
			MaxUploadSize: 32 << 20,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			Workers:   1,
			ReportTTL: 24 * time.Hour,
		},
		Repository: RepositoryConfig{
			Driver:       "sqlite",
			SQLitePath:   "./fakeguard.db",
			KeepDatasets: 5,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Scoring.Workers = 8
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fakeguard",
		KeepDatasets: 20,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.AsyncWorker = true
	return cfg
}

// LoadConfig picks the tier from FAKEGUARD_TIER and applies environment overrides.
func LoadConfig() *Config {
	cfg := DefaultConfig()
	if os.Getenv("FAKEGUARD_TIER") == string(TierPro) {
		cfg = ProConfig()
	}
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides configuration from FAKEGUARD_* environment variables.
// Unset or malformed values leave the current setting in place.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("FAKEGUARD_HOST"); v != "" {
		c.Server.Host = v
	}
	if n, ok := envInt("FAKEGUARD_PORT"); ok {
		c.Server.Port = n
	}
	if v := os.Getenv("FAKEGUARD_DB_PATH"); v != "" {
		c.Repository.SQLitePath = v
	}
	if n, ok := envInt("FAKEGUARD_KEEP_DATASETS"); ok && n >= 0 {
		c.Repository.KeepDatasets = n
	}
	if v := os.Getenv("FAKEGUARD_POSTGRES_HOST"); v != "" {
		c.Repository.PostgresHost = v
	}
	if v := os.Getenv("FAKEGUARD_POSTGRES_USER"); v != "" {
		c.Repository.PostgresUser = v
	}
	if v := os.Getenv("FAKEGUARD_POSTGRES_PASSWORD"); v != "" {
		c.Repository.PostgresPassword = v
	}
	if v := os.Getenv("FAKEGUARD_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("FAKEGUARD_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv("FAKEGUARD_NATS_URL"); v != "" {
		c.EventBus.NATSUrl = v
	}
	if v := os.Getenv("FAKEGUARD_NATS_TOKEN"); v != "" {
		c.EventBus.NATSToken = v
	}
	if n, ok := envInt("FAKEGUARD_SCORING_WORKERS"); ok && n > 0 {
		c.Scoring.Workers = n
	}
	if v := os.Getenv("FAKEGUARD_REPORT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Scoring.ReportTTL = d
		}
	}
	if v := os.Getenv("FAKEGUARD_ASYNC_WORKER"); v != "" {
		c.AsyncWorker = v == "true"
	}
	if v := os.Getenv("FAKEGUARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FAKEGUARD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if os.Getenv("FAKEGUARD_DEBUG") == "true" {
		c.Logging.Level = "debug"
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
