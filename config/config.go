package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server settings
	ServerPort   string        `json:"server_port" yaml:"server_port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	Debug        bool          `json:"debug" yaml:"debug"`
	Environment  string        `json:"environment" yaml:"environment"`

	// Application paths
	LogDir string `json:"log_dir" yaml:"log_dir"`

	Middleware MiddlewareConfig `json:"middleware" yaml:"middleware"`
	CORS       CORSConfig       `json:"cors" yaml:"cors"`
	RateLimit  RateLimitConfig  `json:"rate_limit" yaml:"rate_limit"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Explorer   ExplorerConfig   `json:"explorer" yaml:"explorer"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Render     RenderConfig     `json:"render" yaml:"render"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Queue      QueueConfig      `json:"queue" yaml:"queue"`

	// Application version
	Version string `json:"version" yaml:"version"`

	// Request and shutdown timeouts
	RequestTimeout  time.Duration `json:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type MiddlewareConfig struct {
	EnableRecover   bool `json:"enable_recover" yaml:"enable_recover"`
	EnableRequestID bool `json:"enable_request_id" yaml:"enable_request_id"`
	EnableLogger    bool `json:"enable_logger" yaml:"enable_logger"`
	EnableMetrics   bool `json:"enable_metrics" yaml:"enable_metrics"`
	EnableTimeout   bool `json:"enable_timeout" yaml:"enable_timeout"`
	EnableCORS      bool `json:"enable_cors" yaml:"enable_cors"`
	EnableRateLimit bool `json:"enable_rate_limit" yaml:"enable_rate_limit"`
}

type DatabaseConfig struct {
	Driver             string        `json:"driver" yaml:"driver"`
	Path               string        `json:"path" yaml:"path"`
	DSN                string        `json:"dsn" yaml:"dsn"`
	MaxConnections     int           `json:"max_connections" yaml:"max_connections"`
	MaxIdleConnections int           `json:"max_idle_connections" yaml:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

type ExplorerConfig struct {
	BaseURL           string        `json:"base_url" yaml:"base_url"`
	APIKey            string        `json:"-" yaml:"api_key"`
	ChainID           int64         `json:"chain_id" yaml:"chain_id"`
	Network           string        `json:"network" yaml:"network"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	MaxTransactions   int           `json:"max_transactions" yaml:"max_transactions"`
	CacheTTL          time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	// Strict propagates upstream failures instead of returning empty data.
	Strict bool `json:"strict" yaml:"strict"`
}

type LLMConfig struct {
	APIKey  string        `json:"-" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type RenderConfig struct {
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	APIKey       string        `json:"-" yaml:"api_key"`
	Composition  string        `json:"composition" yaml:"composition"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
}

type StorageConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	AccessKey string `json:"-" yaml:"access_key"`
	SecretKey string `json:"-" yaml:"secret_key"`
	Region    string `json:"region" yaml:"region"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket"`
}

type QueueConfig struct {
	Workers         int           `json:"workers" yaml:"workers"`
	MaxQueued       int           `json:"max_queued" yaml:"max_queued"`
	ProcessTimeout  time.Duration `json:"process_timeout" yaml:"process_timeout"`
	MaxDurationDays int           `json:"max_duration_days" yaml:"max_duration_days"`
	SweepSchedule   string        `json:"sweep_schedule" yaml:"sweep_schedule"`
}

type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `json:"max_age" yaml:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `json:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int  `json:"burst_size" yaml:"burst_size"`
}

// Default configurations
func defaultDevConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableMetrics:   true,
		EnableTimeout:   false, // Disabled for easier debugging
		EnableCORS:      true,
		EnableRateLimit: false,
	}
}

func defaultProdConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableMetrics:   true,
		EnableTimeout:   true,
		EnableCORS:      true,
		EnableRateLimit: true,
	}
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ServerPort:      "8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    20 * time.Minute, // render requests block until the job finishes
		IdleTimeout:     60 * time.Second,
		Environment:     "development",
		LogDir:          "/var/log/walletreel",
		Version:         "1.0.0",
		RequestTimeout:  20 * time.Minute,
		ShutdownTimeout: 30 * time.Second,

		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         86400,
		},

		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			BurstSize:         10,
		},

		Database: DatabaseConfig{
			Driver:             "sqlite",
			Path:               "/var/lib/walletreel/data.db",
			MaxConnections:     10,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    time.Hour,
		},

		Explorer: ExplorerConfig{
			BaseURL:           "https://api.etherscan.io/v2/api",
			ChainID:           1,
			Network:           "mainnet",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 4,
			MaxTransactions:   1000,
			CacheTTL:          5 * time.Minute,
		},

		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 5 * time.Minute,
		},

		Render: RenderConfig{
			Composition:  "WalletReport",
			PollInterval: time.Second,
			Timeout:      15 * time.Minute,
		},

		Storage: StorageConfig{
			Region: "us-east-1",
		},

		Queue: QueueConfig{
			Workers:         4,
			MaxQueued:       100,
			ProcessTimeout:  10 * time.Minute,
			MaxDurationDays: 365,
			SweepSchedule:   "@every 5m",
		},

		Middleware: defaultDevConfig(),
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.Environment == "production" {
		cfg.Middleware = defaultProdConfig()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Server settings
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.ReadTimeout = getEnvAsDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvAsDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = getEnvAsDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.Debug = getEnvAsBool("DEBUG", c.Debug)
	c.Environment = getEnv("ENV", c.Environment)
	c.LogDir = getEnv("LOG_DIR", c.LogDir)
	c.Version = getEnv("VERSION", c.Version)
	c.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	// CORS Configuration
	c.CORS.Enabled = getEnvAsBool("CORS_ENABLED", c.CORS.Enabled)
	c.CORS.AllowedOrigins = getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.AllowedMethods = getEnvAsStringSlice("CORS_ALLOWED_METHODS", c.CORS.AllowedMethods)
	c.CORS.AllowedHeaders = getEnvAsStringSlice("CORS_ALLOWED_HEADERS", c.CORS.AllowedHeaders)
	c.CORS.ExposedHeaders = getEnvAsStringSlice("CORS_EXPOSED_HEADERS", c.CORS.ExposedHeaders)
	c.CORS.AllowCredentials = getEnvAsBool("CORS_ALLOW_CREDENTIALS", c.CORS.AllowCredentials)
	c.CORS.MaxAge = getEnvAsInt("CORS_MAX_AGE", c.CORS.MaxAge)

	// Rate Limiting
	c.RateLimit.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerMinute = getEnvAsInt("RATE_LIMIT_RPM", c.RateLimit.RequestsPerMinute)
	c.RateLimit.BurstSize = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimit.BurstSize)

	// Database
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)
	c.Database.MaxConnections = getEnvAsInt("DB_MAX_CONNECTIONS", c.Database.MaxConnections)

	// Block explorer
	c.Explorer.BaseURL = getEnv("EXPLORER_BASE_URL", c.Explorer.BaseURL)
	c.Explorer.APIKey = getEnv("EXPLORER_API_KEY", c.Explorer.APIKey)
	c.Explorer.ChainID = getEnvAsInt64("CHAIN_ID", c.Explorer.ChainID)
	c.Explorer.Network = getEnv("NETWORK", c.Explorer.Network)
	c.Explorer.Timeout = getEnvAsDuration("EXPLORER_TIMEOUT", c.Explorer.Timeout)
	c.Explorer.MaxTransactions = getEnvAsInt("EXPLORER_MAX_TRANSACTIONS", c.Explorer.MaxTransactions)
	c.Explorer.CacheTTL = getEnvAsDuration("EXPLORER_CACHE_TTL", c.Explorer.CacheTTL)
	c.Explorer.Strict = getEnvAsBool("EXPLORER_STRICT", c.Explorer.Strict)

	// Language model
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)

	// Rendering
	c.Render.BaseURL = getEnv("RENDER_BASE_URL", c.Render.BaseURL)
	c.Render.APIKey = getEnv("RENDER_API_KEY", c.Render.APIKey)
	c.Render.Composition = getEnv("RENDER_COMPOSITION", c.Render.Composition)
	c.Render.PollInterval = getEnvAsDuration("RENDER_POLL_INTERVAL", c.Render.PollInterval)
	c.Render.Timeout = getEnvAsDuration("RENDER_TIMEOUT", c.Render.Timeout)

	// Object storage
	c.Storage.Enabled = getEnvAsBool("SPACES_ENABLED", c.Storage.Enabled)
	c.Storage.AccessKey = getEnv("SPACES_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("SPACES_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Region = getEnv("SPACES_REGION", c.Storage.Region)
	c.Storage.Endpoint = getEnv("SPACES_ENDPOINT", c.Storage.Endpoint)
	c.Storage.Bucket = getEnv("SPACES_BUCKET", c.Storage.Bucket)

	// Generation queue
	c.Queue.Workers = getEnvAsInt("QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.MaxQueued = getEnvAsInt("QUEUE_MAX_QUEUED", c.Queue.MaxQueued)
	c.Queue.ProcessTimeout = getEnvAsDuration("PROCESS_TIMEOUT", c.Queue.ProcessTimeout)
	c.Queue.MaxDurationDays = getEnvAsInt("MAX_DURATION_DAYS", c.Queue.MaxDurationDays)
	c.Queue.SweepSchedule = getEnv("SWEEP_SCHEDULE", c.Queue.SweepSchedule)
}

func (c *Config) Validate() error {
	// Validate paths
	if err := validatePaths(c); err != nil {
		return err
	}

	// Validate timeouts
	if err := validateTimeouts(c); err != nil {
		return err
	}

	// Validate services
	if err := validateServices(c); err != nil {
		return err
	}

	return nil
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.LogDir, "log directory"},
	}
	if c.Database.Driver == "sqlite" {
		paths = append(paths, struct {
			path string
			name string
		}{filepath.Dir(c.Database.Path), "database directory"})
	}

	for _, p := range paths {
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
	}

	return nil
}

func validateTimeouts(c *Config) error {
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Render.PollInterval <= 0 {
		return fmt.Errorf("render poll interval must be positive")
	}
	if c.Render.Timeout <= 0 {
		return fmt.Errorf("render timeout must be positive")
	}
	return nil
}

func validateServices(c *Config) error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue workers must be positive")
	}
	if c.Queue.MaxDurationDays <= 0 {
		return fmt.Errorf("max duration days must be positive")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required when storage is enabled")
	}
	return nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			return strings.Split(value, ",")
		}
	}
	return defaultValue
}
