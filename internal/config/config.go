package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Auth     AuthConfig
	Keitaro  KeitaroConfig
	Sync     SyncConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret string
}

// KeitaroConfig holds the tracker API endpoint, credentials and the
// campaign defaults applied when a create request leaves them empty.
type KeitaroConfig struct {
	APIURL        string
	APIKey        string
	DefaultDomain string
	DefaultGroup  string
	DefaultSource string
}

// SyncConfig holds background synchronization settings
type SyncConfig struct {
	Interval time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      int
	WebAppURI string
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}

	// Keitaro configuration
	if cfg.Keitaro.APIURL, err = requireEnv("KEITARO_API_URL"); err != nil {
		return nil, err
	}
	if cfg.Keitaro.APIKey, err = requireEnv("KEITARO_API_KEY"); err != nil {
		return nil, err
	}
	cfg.Keitaro.DefaultDomain = getEnvWithDefault("KEITARO_DOMAIN", "")
	cfg.Keitaro.DefaultGroup = getEnvWithDefault("KEITARO_GROUP", "")
	cfg.Keitaro.DefaultSource = getEnvWithDefault("KEITARO_SOURCE", "")

	// Sync configuration
	syncInterval := getEnvWithDefault("SYNC_INTERVAL_SECONDS", "300")
	intervalSeconds, err := strconv.Atoi(syncInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SYNC_INTERVAL_SECONDS: %w", err)
	}
	cfg.Sync.Interval = time.Duration(intervalSeconds) * time.Second

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	if cfg.Server.WebAppURI, err = requireEnv("WEBAPP_URI"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
