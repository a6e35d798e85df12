package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	RedisURL           string
	DatabaseURL        string
	RabbitMQURL        string
	RabbitMQPrefetch   int
	ServerPort         string
	StrictMode         bool
	ConfigRecordTTL    time.Duration
	IngressRate        string
	CORSAllowedOrigins []string
	AuditQueueEnabled  bool
	WorkerDebugMode    bool
	ServerDebugMode    bool
	OTELEnabled        bool
	OTELEndpoint       string
	OTELInsecure       bool
	OTELSampleRatio    float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/9"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:   getEnvInt("RABBITMQ_PREFETCH", 10),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		StrictMode:         getEnvBool("STRICT_MODE", false),
		ConfigRecordTTL:    getEnvDuration("CONFIG_RECORD_TTL", 60*24*time.Hour),
		IngressRate:        getEnv("INGRESS_RATE", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		AuditQueueEnabled:  getEnvBool("AUDIT_QUEUE_ENABLED", false),
		WorkerDebugMode:    getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:    getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:       getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}

	if cfg.ConfigRecordTTL <= 0 {
		return nil, fmt.Errorf("CONFIG_RECORD_TTL must be positive")
	}

	if cfg.AuditQueueEnabled && cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required when AUDIT_QUEUE_ENABLED is set")
	}

	return cfg, nil
}

// RequireBilling checks the settings the billing worker cannot run without.
func (c *Config) RequireBilling() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for billing")
	}
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for billing")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
