// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Database settings
	DatabaseDriver string
	DatabaseDSN    string

	// WhatsApp settings
	WhatsAppStoreDriver string
	WhatsAppStoreDSN    string
	MediaDir            string
	MediaBaseURL        string
	BackfillWindow      time.Duration

	// NATS settings
	NATSEnabled bool
	NATSURL     string
	NATSToken   string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Initial admin seeded when the accounts table is empty
	AdminName     string
	AdminUsername string
	AdminPassword string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSOrigins:        []string{getEnv("CORS_ORIGIN", "*")},

		// Database
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "desk.db"),

		// WhatsApp
		WhatsAppStoreDriver: getEnv("WHATSAPP_STORE_DRIVER", "sqlite3"),
		WhatsAppStoreDSN:    getEnv("WHATSAPP_STORE_DSN", "file:whatsapp.db?_foreign_keys=on"),
		MediaDir:            getEnv("MEDIA_DIR", "media"),
		MediaBaseURL:        getEnv("MEDIA_BASE_URL", "/media"),
		BackfillWindow:      getDurationEnv("BACKFILL_WINDOW", 24*time.Hour),

		// NATS
		NATSEnabled: getBoolEnv("NATS_ENABLED", false),
		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		NATSToken:   getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 12*time.Hour),

		// Initial admin
		AdminName:     getEnv("ADMIN_NAME", "Administrador"),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
