// Package config provides configuration management for hiveguard.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// StorageDriver selects the persistence backend.
type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres"
	StorageSQLite   StorageDriver = "sqlite"
	StorageMemory   StorageDriver = "memory"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment   Environment
	ListenAddr    string
	LogLevel      string
	StorageDriver StorageDriver
	DatabaseURL   string
	SQLitePath    string
	RedisURL      string
	BootstrapFile string
	HostVersion   string

	SessionSecret string
	SessionMaxAge int // session lifetime in seconds (default: 86400)

	SchedulerTick        time.Duration // how often the reconciliation pass runs (default: 5m)
	SchedulerConcurrency int           // configurations synced in parallel per pass (default: 4)

	InboundRateLimit       int64         // requests allowed per period on shared-secret routes
	InboundRateLimitPeriod time.Duration // default: 1m

	Proxy ProxyConfig
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	driver := StorageDriver(strings.ToLower(os.Getenv("STORAGE_DRIVER")))
	switch driver {
	case StoragePostgres, StorageSQLite, StorageMemory:
	default:
		if os.Getenv("DATABASE_URL") != "" {
			driver = StoragePostgres
		} else {
			driver = StorageSQLite
		}
	}

	sessionMaxAge := getEnvInt("SESSION_MAX_AGE", 86400)
	if sessionMaxAge < 0 {
		sessionMaxAge = 86400
	}

	tick := getEnvDuration("SCHEDULER_TICK", 5*time.Minute)
	if tick < time.Minute {
		tick = time.Minute
	}

	concurrency := getEnvInt("SCHEDULER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	rateLimit := int64(getEnvInt("INBOUND_RATE_LIMIT", 60))
	if rateLimit < 1 {
		rateLimit = 60
	}

	return ServerConfig{
		Environment:            env,
		ListenAddr:             getEnvString("LISTEN_ADDR", ":8069"),
		LogLevel:               getEnvString("LOG_LEVEL", "info"),
		StorageDriver:          driver,
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		SQLitePath:             getEnvString("SQLITE_PATH", "hiveguard.db"),
		RedisURL:               os.Getenv("REDIS_URL"),
		BootstrapFile:          os.Getenv("BOOTSTRAP_FILE"),
		HostVersion:            getEnvString("HOST_VERSION", "Unknown"),
		SessionSecret:          os.Getenv("SESSION_SECRET"),
		SessionMaxAge:          sessionMaxAge,
		SchedulerTick:          tick,
		SchedulerConcurrency:   concurrency,
		InboundRateLimit:       rateLimit,
		InboundRateLimitPeriod: getEnvDuration("INBOUND_RATE_LIMIT_PERIOD", time.Minute),
		Proxy:                  LoadProxyConfig(),
	}
}

// Validate checks settings that the server cannot start without.
func (c ServerConfig) Validate() error {
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	return nil
}

// ValidateStorage checks the settings of the selected storage driver.
func (c ServerConfig) ValidateStorage() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s storage driver", c.StorageDriver)
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the %s storage driver", c.StorageDriver)
		}
	}
	return nil
}

// IsProduction reports whether the server runs in production.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// getEnvString reads a string from an environment variable, returning the default if unset.
func getEnvString(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a Go duration string, returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
