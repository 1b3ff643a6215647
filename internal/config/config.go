// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment gateway
	GatewayBaseURL string // Order-creation endpoint of the payment gateway
	GatewayKeyID   string // API key id for gateway basic auth
	GatewaySecret  string // Shared secret: gateway auth + callback signature verification
	GatewayTimeout int    // Order creation timeout in seconds

	// Billing
	DefaultMonthlyPrice int64  // Monthly price assigned at initial setup
	Currency            string // ISO currency code passed to the gateway

	// Security
	AdminSecret  string // Admin API secret (X-Admin-Secret header)
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when empty
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultPrice          = 499
	DefaultCurrency       = "INR"
	DefaultGatewayTimeout = 10
	DefaultRateLimit      = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		GatewayBaseURL:      os.Getenv("GATEWAY_BASE_URL"),
		GatewayKeyID:        os.Getenv("GATEWAY_KEY_ID"),
		GatewaySecret:       os.Getenv("GATEWAY_SECRET"), // Required, no default
		GatewayTimeout:      int(getEnvInt64("GATEWAY_TIMEOUT_SECONDS", DefaultGatewayTimeout)),
		DefaultMonthlyPrice: getEnvInt64("DEFAULT_MONTHLY_PRICE", DefaultPrice),
		Currency:            getEnv("CURRENCY", DefaultCurrency),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.GatewaySecret == "" {
		return fmt.Errorf("GATEWAY_SECRET is required")
	}

	if c.DefaultMonthlyPrice <= 0 {
		return fmt.Errorf("DEFAULT_MONTHLY_PRICE must be positive")
	}

	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT_SECONDS must be positive")
	}

	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
