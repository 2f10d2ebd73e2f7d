package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Realtime  RealtimeConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AuthConfig holds token issuance and password hashing configuration
type AuthConfig struct {
	TokenTTL   time.Duration
	BcryptCost int
}

// LimiterConfig holds the parameters of one fixed-window limiter
type LimiterConfig struct {
	MaxAttempts int
	Window      time.Duration
	// CountAll records every attempt against the window; when false only
	// failed attempts are counted.
	CountAll bool
}

// RateLimitConfig holds the limiter settings per protected action
type RateLimitConfig struct {
	Login        LimiterConfig
	Registration LimiterConfig
}

// RealtimeConfig holds realtime relay configuration
type RealtimeConfig struct {
	// SubscriberSecret signs short-lived subscriber tokens for the stream endpoint
	SubscriberSecret string
	SubscriberTTL    time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "portal_api"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			TokenTTL:   getDurationEnv("AUTH_TOKEN_TTL", time.Hour),
			BcryptCost: getIntEnv("AUTH_BCRYPT_COST", 12),
		},
		RateLimit: RateLimitConfig{
			Login: LimiterConfig{
				MaxAttempts: getIntEnv("LOGIN_MAX_ATTEMPTS", 3),
				Window:      getDurationEnv("LOGIN_LOCKOUT_WINDOW", 5*time.Minute),
				CountAll:    getBoolEnv("LOGIN_COUNT_ALL_ATTEMPTS", false),
			},
			Registration: LimiterConfig{
				MaxAttempts: getIntEnv("REGISTRATION_MAX_ATTEMPTS", 5),
				Window:      getDurationEnv("REGISTRATION_LOCKOUT_WINDOW", 15*time.Minute),
				CountAll:    getBoolEnv("REGISTRATION_COUNT_ALL_ATTEMPTS", true),
			},
		},
		Realtime: RealtimeConfig{
			SubscriberSecret: getEnv("REALTIME_SUBSCRIBER_SECRET", ""),
			SubscriberTTL:    getDurationEnv("REALTIME_SUBSCRIBER_TTL", time.Hour),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns a duration from environment variable or default.
// Accepts Go duration strings ("5m", "1h30m").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv returns a boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
