package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	Port        int
	LogLevel    string

	// Postgres
	PostgresDSN string

	// Redis cooling cache. An empty address falls back to the in-memory
	// cache, for local development only.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS (for downstream event fan-out)
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	// Docker: Use nats://nats:4222 if running engine in Docker
	NatsURL              string
	NatsConnectTimeout   time.Duration
	NatsReconnectWait    time.Duration
	NatsMaxReconnects    int
	NatsDrainTimeout     time.Duration // For graceful shutdown
	NatsFilteredSubject  string
	NatsViolationSubject string

	// DQ review service
	DQServiceURL     string
	DQServiceTimeout time.Duration

	// Retrigger suppression
	RetriggerEnabled    bool
	RetriggerEventTypes string // comma-separated allow-list

	// Event processing
	ReplayGuardTTL  time.Duration
	ConfigCacheTTL  time.Duration
	SideEffectQueue int
	WorkerCount     int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Postgres
		PostgresDSN: getEnv("POSTGRES_DSN", "host=localhost user=roadwatch password=roadwatch dbname=roadwatch port=5432 sslmode=disable"),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// NATS (configured for Docker Compose setup)
		NatsURL:              getNatsURL(),
		NatsConnectTimeout:   getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:    getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:    getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:     getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),
		NatsFilteredSubject:  getEnv("NATS_FILTERED_SUBJECT", "events.filtered"),
		NatsViolationSubject: getEnv("NATS_VIOLATION_SUBJECT", "events.violation"),

		// DQ review service
		DQServiceURL:     getEnv("DQ_SERVICE_URL", "http://localhost:8600"),
		DQServiceTimeout: getEnvDuration("DQ_SERVICE_TIMEOUT", 5*time.Second),

		// Retrigger suppression
		RetriggerEnabled:    getEnvBool("RETRIGGER_ENABLED", false),
		RetriggerEventTypes: getEnv("RETRIGGER_EVENT_TYPES", ""),

		// Event processing
		ReplayGuardTTL:  getEnvDuration("REPLAY_GUARD_TTL", 600*time.Second),
		ConfigCacheTTL:  getEnvDuration("CONFIG_CACHE_TTL", 180*time.Second),
		SideEffectQueue: getEnvInt("SIDE_EFFECT_QUEUE", 256),
		WorkerCount:     getEnvInt("WORKER_COUNT", 4),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	// Check for Docker-specific environment indicators
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
