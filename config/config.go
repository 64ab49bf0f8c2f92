package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"creatorpay/database"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)
	NATSEnabled bool

	// Redis configuration, used for job locks. Empty address means single-instance mode.
	RedisAddr     string
	RedisPassword string

	// HTTP API
	HTTPAddr string

	// Settlement configuration
	FeeRatePercent      int64
	MaxPayoutRetries    int
	PayoutRetryCooldown time.Duration
	PayoutRetryInterval time.Duration
	PayoutTimeout       time.Duration
	BatchRunDay         int // Day of month the previous period is swept (1-28)
	BatchRunHour        int // Hour in UTC the sweep runs (0-23)
	BatchPageSize       int
	PeriodTimezone      string

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int
	OTelServiceName          string

	// Logging
	LogLevel string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// Location returns the time zone used to bucket payments into periods
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.PeriodTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// NATS
		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),
		NATSEnabled: getEnvWithDefault("NATS_ENABLED", "true") == "true",

		// Redis
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		// HTTP
		HTTPAddr: getEnvWithDefault("HTTP_ADDR", ":8080"),

		// Settlement defaults
		FeeRatePercent:      10,
		MaxPayoutRetries:    3,
		PayoutRetryCooldown: time.Hour,
		PayoutRetryInterval: 30 * time.Minute,
		PayoutTimeout:       10 * time.Second,
		BatchRunDay:         1,
		BatchRunHour:        3, // 03:00 UTC
		BatchPageSize:       500,
		PeriodTimezone:      getEnvWithDefault("PERIOD_TIMEZONE", "UTC"),

		// OpenTelemetry
		OTelEnabled:              os.Getenv("OTEL_ENABLED") == "true",
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelExportIntervalMillis: 60000,
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "creatorpay"),

		// Logging
		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if v := os.Getenv("MAX_PAYOUT_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			config.MaxPayoutRetries = parsed
		}
	}
	if v := os.Getenv("PAYOUT_RETRY_COOLDOWN"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			config.PayoutRetryCooldown = parsed
		}
	}
	if v := os.Getenv("PAYOUT_RETRY_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			config.PayoutRetryInterval = parsed
		}
	}
	if v := os.Getenv("PAYOUT_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			config.PayoutTimeout = parsed
		}
	}
	if v := os.Getenv("BATCH_RUN_DAY"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			config.BatchRunDay = parsed
		}
	}
	if v := os.Getenv("BATCH_RUN_HOUR"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			config.BatchRunHour = parsed
		}
	}
	if v := os.Getenv("BATCH_PAGE_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			config.BatchPageSize = parsed
		}
	}
	if v := os.Getenv("OTEL_EXPORT_INTERVAL_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			config.OTelExportIntervalMillis = parsed
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks ranges and required settings
func (c *Config) validate() error {
	if c.Environment != "test" {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		// If DatabaseName is provided, ensure it's not empty
		if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
			return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}
	if c.MaxPayoutRetries < 1 {
		return fmt.Errorf("MAX_PAYOUT_RETRIES must be at least 1, got %d", c.MaxPayoutRetries)
	}
	if c.BatchRunDay < 1 || c.BatchRunDay > 28 {
		return fmt.Errorf("BATCH_RUN_DAY must be between 1 and 28, got %d", c.BatchRunDay)
	}
	if c.BatchRunHour < 0 || c.BatchRunHour > 23 {
		return fmt.Errorf("BATCH_RUN_HOUR must be between 0 and 23, got %d", c.BatchRunHour)
	}
	if c.BatchPageSize < 1 {
		return fmt.Errorf("BATCH_PAGE_SIZE must be positive, got %d", c.BatchPageSize)
	}
	if c.PayoutTimeout <= 0 {
		return fmt.Errorf("PAYOUT_TIMEOUT must be positive")
	}
	if c.PayoutRetryCooldown <= 0 {
		return fmt.Errorf("PAYOUT_RETRY_COOLDOWN must be positive, got %s", c.PayoutRetryCooldown)
	}
	if c.PayoutRetryInterval <= 0 {
		return fmt.Errorf("PAYOUT_RETRY_INTERVAL must be positive, got %s", c.PayoutRetryInterval)
	}
	if _, err := time.LoadLocation(c.PeriodTimezone); err != nil {
		return fmt.Errorf("invalid PERIOD_TIMEZONE %q: %w", c.PeriodTimezone, err)
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:         "test",
		NATSEnabled:         false,
		HTTPAddr:            ":0",
		FeeRatePercent:      10,
		MaxPayoutRetries:    3,
		PayoutRetryCooldown: time.Hour,
		PayoutRetryInterval: 30 * time.Minute,
		PayoutTimeout:       2 * time.Second,
		BatchRunDay:         1,
		BatchRunHour:        3,
		BatchPageSize:       100,
		PeriodTimezone:      "UTC",
		OTelExporterType:    "none",
		OTelServiceName:     "creatorpay-test",
		LogLevel:            "debug",
	}
}
