package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL    string
	DatabaseDriver string
	SQLitePath     string
	StorageTimeout time.Duration
	HardQuota      bool

	// Storage circuit breaker
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration

	// Redis
	RedisURL             string
	SubscriptionCacheTTL time.Duration

	// RabbitMQ
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Worker
	WorkerHealthAddr string

	// HTTP API
	HTTPAddr           string
	AuthJWTSecret      string
	AdminToken         string
	RateLimitPerMinute int

	// Billing providers
	StripePricePlans    map[string]string
	ShopifyVariantPlans map[string]string
	ShopifyPeriodDays   int

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	databaseURL := getEnv("DATABASE_URL", "")

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", ""),

		DatabaseURL:    databaseURL,
		DatabaseDriver: getEnv("DATABASE_DRIVER", "auto"),
		SQLitePath:     getEnv("SQLITE_PATH", ""),
		StorageTimeout: getDurationEnv("STORAGE_TIMEOUT", 3*time.Second),
		HardQuota:      getBoolEnv("HARD_QUOTA", false),

		BreakerMaxFailures: getIntEnv("BREAKER_MAX_FAILURES", 5),
		BreakerOpenTimeout: getDurationEnv("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		RedisURL:             getEnv("REDIS_URL", ""),
		SubscriptionCacheTTL: getDurationEnv("SUBSCRIPTION_CACHE_TTL", 30*time.Second),

		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),

		HTTPAddr:           getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 120),

		StripePricePlans:    getMapEnv("STRIPE_PRICE_PLANS"),
		ShopifyVariantPlans: getMapEnv("SHOPIFY_VARIANT_PLANS"),
		ShopifyPeriodDays:   getIntEnv("SHOPIFY_PERIOD_DAYS", 30),

		MCPAddr:      getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ShopifyPeriod returns the entitlement length granted per Shopify order.
func (c *Config) ShopifyPeriod() time.Duration {
	return time.Duration(c.ShopifyPeriodDays) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getMapEnv parses "a=x,b=y". Malformed pairs are skipped.
func getMapEnv(key string) map[string]string {
	result := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		result[k] = v
	}
	return result
}
