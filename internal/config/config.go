package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay server and the worker.
type Config struct {
	Port       string
	Env        string
	InstanceID string

	DatabaseURL string // Postgres; when empty, SQLite is used
	SQLitePath  string
	RedisURL    string

	JWTSecret string

	// Queue behavior
	QueueMaxAttempts int
	QueueBackoff     time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "3000"),
		Env:              getEnv("ENV", "development"),
		InstanceID:       getEnv("INSTANCE_ID", hostname()),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/chat.db"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:        getEnv("JWT_SECRET", "super-secret-e2ee-key"),
		QueueMaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
		QueueBackoff:     time.Duration(getEnvInt("QUEUE_BACKOFF_MS", 500)) * time.Millisecond,
	}

	// In production, require real credentials and a real database
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if os.Getenv("REDIS_URL") == "" {
			panic("REDIS_URL is required in production")
		}
		if os.Getenv("JWT_SECRET") == "" {
			panic("JWT_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "relay-1"
	}
	return h
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
