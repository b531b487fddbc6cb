package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	CORSAllowedOrigins []string

	// Practice
	PracticeTimezone string
	Currency         string
	SlotTimes        []string
	SlotCacheTTL     time.Duration

	// Auth
	JWTSecret string

	// Payment gateway
	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration
	AllowFakePayments    bool
	PendingOrderTTL      time.Duration
	ExpirySweepSpec      string
	MaxOrdersPerEmail    int
	OrderWindow          time.Duration

	// Refund policy
	FullRefundWindow     time.Duration
	PartialRefundPercent int

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS (reconciliation queue)
	AWSRegion              string
	AWSAccessKeyID         string
	AWSSecretAccessKey     string
	AWSEndpointOverride    string
	ReconciliationQueueURL string
	OutboxPollInterval     time.Duration

	// Webhook idempotency
	ProcessedEventRetention time.Duration

	// Rate limiting
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),

		PracticeTimezone: getEnv("PRACTICE_TZ", "Asia/Kolkata"),
		Currency:         strings.ToUpper(getEnv("CURRENCY", "INR")),
		SlotTimes:        getEnvAsList("SLOT_TIMES", []string{"09:00", "10:00", "17:00", "18:00", "19:00", "20:00"}),
		SlotCacheTTL:     getEnvAsDuration("SLOT_CACHE_TTL", 30*time.Second),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.razorpay.com"),
		GatewayKeyID:         getEnv("GATEWAY_KEY_ID", ""),
		GatewayKeySecret:     getEnv("GATEWAY_KEY_SECRET", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		GatewayTimeout:       getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
		AllowFakePayments:    getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),
		PendingOrderTTL:      getEnvAsDuration("PENDING_ORDER_TTL", 2*time.Hour),
		ExpirySweepSpec:      getEnv("EXPIRY_SWEEP_SPEC", "@every 15m"),
		MaxOrdersPerEmail:    getEnvAsInt("MAX_ORDERS_PER_EMAIL", 5),
		OrderWindow:          getEnvAsDuration("ORDER_WINDOW", time.Hour),

		FullRefundWindow:     getEnvAsDuration("FULL_REFUND_WINDOW", 24*time.Hour),
		PartialRefundPercent: getEnvAsInt("PARTIAL_REFUND_PERCENT", 50),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:              getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:         getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:    getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ReconciliationQueueURL: getEnv("RECONCILIATION_QUEUE_URL", ""),
		OutboxPollInterval:     getEnvAsDuration("OUTBOX_POLL_INTERVAL", 10*time.Second),

		ProcessedEventRetention: getEnvAsDuration("PROCESSED_EVENT_RETENTION", 30*24*time.Hour),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// Location resolves the practice timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.PracticeTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
