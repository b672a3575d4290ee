package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr string

	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string

	SessionRetention  time.Duration
	CacheRetention    time.Duration
	MetricsRetention  time.Duration
	RetentionInterval time.Duration

	CostPerExtractionEur float64
	MinCacheConfidence   float64

	RateLimit       int
	RateLimitWindow time.Duration

	ExtractorURL   string
	ExtractorToken string
	WorkflowURL    string
	WorkflowToken  string

	ArchiveBucket string
	ArchivePrefix string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
}

func Load() *Config {
	cfg := &Config{
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		PostgresUser:         getEnv("POSTGRES_USER", "autopilot"),
		PostgresPassword:     getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:         getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:         getEnv("POSTGRES_PORT", "5432"),
		PostgresDatabase:     getEnv("POSTGRES_DATABASE", "extraction_store"),
		PostgresSSLMode:      getEnv("POSTGRES_SSL_MODE", "disable"),
		SessionRetention:     getEnvDuration("SESSION_RETENTION", 30*24*time.Hour),
		CacheRetention:       getEnvDuration("CACHE_RETENTION", 7*24*time.Hour),
		MetricsRetention:     getEnvDuration("METRICS_RETENTION", 365*24*time.Hour),
		RetentionInterval:    getEnvDuration("RETENTION_INTERVAL", 24*time.Hour),
		CostPerExtractionEur: getEnvFloat("COST_PER_EXTRACTION_EUR", 0.08),
		MinCacheConfidence:   getEnvFloat("MIN_CACHE_CONFIDENCE", 0.5),
		RateLimit:            getEnvInt("RATE_LIMIT", 100),
		RateLimitWindow:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		ExtractorURL:         mustGetEnv("EXTRACTOR_URL"),
		ExtractorToken:       getEnv("EXTRACTOR_TOKEN", ""),
		WorkflowURL:          getEnv("WORKFLOW_URL", ""),
		WorkflowToken:        getEnv("WORKFLOW_TOKEN", ""),
		ArchiveBucket:        getEnv("ARCHIVE_BUCKET", ""),
		ArchivePrefix:        getEnv("ARCHIVE_PREFIX", ""),
		S3Region:             getEnv("AWS_REGION", "eu-west-1"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3AccessKey:          getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:          getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	if cfg.ArchiveBucket != "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		panic("AWS credentials must be provided when ARCHIVE_BUCKET is set")
	}

	return cfg
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("Missing required environment variable: " + key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
