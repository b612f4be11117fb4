package app

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired token reaping interval (default: 1h)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // SQLite database file (default: ./gatekeeper.db)
	DatabaseURL    string // Postgres DSN, required for the postgres driver

	CacheDriver string // memory or redis (default: memory)
	CacheSize   int    // Entry limit of the memory cache (default: 10000)
	RedisURL    string // redis://host:port/db, required for the redis driver

	Issuer          string        // iss claim (default: gatekeeper)
	Audience        []string      // aud claim, comma separated (default: gatekeeper)
	SecurityKey     string        // HS256 key, at least 32 bytes. Generated per process in dev when empty.
	AccessTokenTTL  time.Duration // (default: 24h)
	RefreshTokenTTL time.Duration // (default: 720h)

	PepperFile          string // Password hashing pepper (default: ./pepper)
	SeedDefaultPassword string // Password of the seeded admin and user accounts (default: 123qwe)
	MetricsEnabled      bool   // Serve /metrics and record instruments (default: true)

	// LogOutput overrides stdout. Not read from the environment.
	LogOutput io.Writer
}

func LoadConfig() Config {
	return Config{
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseFile:   getEnvOrDefault("DATABASE_FILE", "gatekeeper.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		CacheDriver: getEnvOrDefault("CACHE_DRIVER", "memory"),
		CacheSize:   getEnvIntOrDefault("CACHE_SIZE", 10000),
		RedisURL:    os.Getenv("REDIS_URL"),

		Issuer:          getEnvOrDefault("JWT_ISSUER", "gatekeeper"),
		Audience:        splitList(getEnvOrDefault("JWT_AUDIENCE", "gatekeeper")),
		SecurityKey:     os.Getenv("JWT_SECURITY_KEY"),
		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		PepperFile:          getEnvOrDefault("PEPPER_FILE", "pepper"),
		SeedDefaultPassword: os.Getenv("SEED_DEFAULT_PASSWORD"),
		MetricsEnabled:      getEnvBoolOrDefault("METRICS_ENABLED", true),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// "1h", "30m", "90s"
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
