// Package config loads the service configuration from defaults, an optional
// .env file, and SWAGGER_MCP_* environment variables. Core packages receive
// config values; only this package and cmd/ touch the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the application configuration. Immutable after Load.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Search    SearchConfig    `json:"search"`
	Timeouts  TimeoutConfig   `json:"timeouts"`
	Breaker   BreakerConfig   `json:"breaker"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Auth      AuthConfig      `json:"auth"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig holds the HTTP transport settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"read_timeout_seconds"`
	WriteTimeout int    `json:"write_timeout_seconds"`
	MaxInFlight  int    `json:"max_in_flight"`
}

// StorageConfig selects and tunes the store backend.
type StorageConfig struct {
	Backend       string `json:"backend"`
	DataDir       string `json:"data_dir"`
	ReadPoolSize  int    `json:"read_pool_size"`
	BusyTimeoutMS int    `json:"busy_timeout_ms"`
	PostgresDSN   string `json:"-"`
	RetryAttempts int    `json:"retry_attempts"`
}

// RankWeights are the full-text ranking weights, one per indexed column.
type RankWeights struct {
	Path        float64 `json:"path"`
	Summary     float64 `json:"summary"`
	Description float64 `json:"description"`
	OperationID float64 `json:"operation_id"`
	Tags        float64 `json:"tags"`
	Category    float64 `json:"category"`
}

// SearchConfig tunes pagination and ranking.
type SearchConfig struct {
	DefaultPerPage int         `json:"default_per_page"`
	MaxPerPage     int         `json:"max_per_page"`
	Weights        RankWeights `json:"weights"`
}

// TimeoutConfig holds the per-operation deadlines.
type TimeoutConfig struct {
	RetrievalSeconds int `json:"retrieval_seconds"`
	IngestSeconds    int `json:"ingest_seconds"`
}

// BreakerConfig tunes the per-operation circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	OpenSeconds      int `json:"open_seconds"`
}

// RateLimitConfig enables the redis sliding-window limiter for http mode.
type RateLimitConfig struct {
	Enabled           bool   `json:"enabled"`
	RedisAddr         string `json:"redis_addr"`
	RedisPassword     string `json:"-"`
	RedisDB           int    `json:"redis_db"`
	RequestsPerMinute int    `json:"requests_per_minute"`
}

// AuthConfig holds the optional bcrypt hash of the HTTP API key. Empty
// disables authentication.
type AuthConfig struct {
	APIKeyHash string `json:"-"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			MaxInFlight:  64,
		},
		Storage: StorageConfig{
			Backend:       BackendSQLite,
			DataDir:       "./data",
			ReadPoolSize:  10,
			BusyTimeoutMS: 5000,
			RetryAttempts: 3,
		},
		Search: SearchConfig{
			DefaultPerPage: 20,
			MaxPerPage:     500,
			Weights: RankWeights{
				Path:        10.0,
				Summary:     5.0,
				Description: 3.0,
				OperationID: 2.0,
				Tags:        1.0,
				Category:    1.0,
			},
		},
		Timeouts: TimeoutConfig{
			RetrievalSeconds: 30,
			IngestSeconds:    60,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenSeconds:      30,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RedisAddr:         "localhost:6379",
			RequestsPerMinute: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, .env, and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := Default()
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	loadServerEnv(cfg)
	loadStorageEnv(cfg)
	loadSearchEnv(cfg)
	loadTimeoutEnv(cfg)
	loadBreakerEnv(cfg)
	loadRateLimitEnv(cfg)

	if hash := os.Getenv("SWAGGER_MCP_API_KEY_HASH"); hash != "" {
		cfg.Auth.APIKeyHash = hash
	}
	if level := os.Getenv("SWAGGER_MCP_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("SWAGGER_MCP_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

func loadServerEnv(cfg *Config) {
	if host := os.Getenv("SWAGGER_MCP_HOST"); host != "" {
		cfg.Server.Host = host
	}
	setIntEnv("SWAGGER_MCP_PORT", &cfg.Server.Port)
	setIntEnv("SWAGGER_MCP_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout)
	setIntEnv("SWAGGER_MCP_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout)
	setIntEnv("SWAGGER_MCP_MAX_IN_FLIGHT", &cfg.Server.MaxInFlight)
}

func loadStorageEnv(cfg *Config) {
	if backend := os.Getenv("SWAGGER_MCP_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dir := os.Getenv("SWAGGER_MCP_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if dsn := os.Getenv("SWAGGER_MCP_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	setIntEnv("SWAGGER_MCP_READ_POOL_SIZE", &cfg.Storage.ReadPoolSize)
	setIntEnv("SWAGGER_MCP_BUSY_TIMEOUT_MS", &cfg.Storage.BusyTimeoutMS)
	setIntEnv("SWAGGER_MCP_STORE_RETRY_ATTEMPTS", &cfg.Storage.RetryAttempts)
}

func loadSearchEnv(cfg *Config) {
	setIntEnv("SWAGGER_MCP_DEFAULT_PER_PAGE", &cfg.Search.DefaultPerPage)
	setIntEnv("SWAGGER_MCP_MAX_PER_PAGE", &cfg.Search.MaxPerPage)
	setFloatEnv("SWAGGER_MCP_WEIGHT_PATH", &cfg.Search.Weights.Path)
	setFloatEnv("SWAGGER_MCP_WEIGHT_SUMMARY", &cfg.Search.Weights.Summary)
	setFloatEnv("SWAGGER_MCP_WEIGHT_DESCRIPTION", &cfg.Search.Weights.Description)
	setFloatEnv("SWAGGER_MCP_WEIGHT_OPERATION_ID", &cfg.Search.Weights.OperationID)
	setFloatEnv("SWAGGER_MCP_WEIGHT_TAGS", &cfg.Search.Weights.Tags)
	setFloatEnv("SWAGGER_MCP_WEIGHT_CATEGORY", &cfg.Search.Weights.Category)
}

func loadTimeoutEnv(cfg *Config) {
	setIntEnv("SWAGGER_MCP_RETRIEVAL_TIMEOUT_SECONDS", &cfg.Timeouts.RetrievalSeconds)
	setIntEnv("SWAGGER_MCP_INGEST_TIMEOUT_SECONDS", &cfg.Timeouts.IngestSeconds)
}

func loadBreakerEnv(cfg *Config) {
	setIntEnv("SWAGGER_MCP_BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	setIntEnv("SWAGGER_MCP_BREAKER_SUCCESS_THRESHOLD", &cfg.Breaker.SuccessThreshold)
	setIntEnv("SWAGGER_MCP_BREAKER_OPEN_SECONDS", &cfg.Breaker.OpenSeconds)
}

func loadRateLimitEnv(cfg *Config) {
	if enabled := os.Getenv("SWAGGER_MCP_RATE_LIMIT_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.RateLimit.Enabled = b
		}
	}
	if addr := os.Getenv("SWAGGER_MCP_REDIS_ADDR"); addr != "" {
		cfg.RateLimit.RedisAddr = addr
	}
	if password := os.Getenv("SWAGGER_MCP_REDIS_PASSWORD"); password != "" {
		cfg.RateLimit.RedisPassword = password
	}
	setIntEnv("SWAGGER_MCP_REDIS_DB", &cfg.RateLimit.RedisDB)
	setIntEnv("SWAGGER_MCP_RATE_LIMIT_RPM", &cfg.RateLimit.RequestsPerMinute)
}

func setIntEnv(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setFloatEnv(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxInFlight < 1 {
		return fmt.Errorf("max in-flight operations must be positive, got %d", c.Server.MaxInFlight)
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage data dir is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (supported: sqlite, postgres)", c.Storage.Backend)
	}
	if c.Storage.ReadPoolSize < 1 {
		return fmt.Errorf("read pool size must be positive, got %d", c.Storage.ReadPoolSize)
	}
	if c.Storage.RetryAttempts < 0 {
		return fmt.Errorf("store retry attempts must not be negative, got %d", c.Storage.RetryAttempts)
	}

	if c.Search.DefaultPerPage < 1 {
		return fmt.Errorf("default per-page must be positive, got %d", c.Search.DefaultPerPage)
	}
	if c.Search.MaxPerPage < c.Search.DefaultPerPage {
		return fmt.Errorf("max per-page %d is below default per-page %d", c.Search.MaxPerPage, c.Search.DefaultPerPage)
	}

	if c.Timeouts.RetrievalSeconds < 1 {
		return fmt.Errorf("retrieval timeout must be positive, got %d", c.Timeouts.RetrievalSeconds)
	}
	if c.Timeouts.IngestSeconds < 1 {
		return fmt.Errorf("ingest timeout must be positive, got %d", c.Timeouts.IngestSeconds)
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker failure threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("breaker success threshold must be positive, got %d", c.Breaker.SuccessThreshold)
	}

	// An empty redis address is fine: the limiter falls back to its
	// process-local window.
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate limit requests per minute must be positive, got %d", c.RateLimit.RequestsPerMinute)
	}

	return nil
}
