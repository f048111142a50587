package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all daemon configuration
type Config struct {
	NodeEnv    string
	Port       string
	InstanceID string
	Database   DatabaseConfig
	Remote     RemoteConfig
}

// DatabaseConfig holds local store configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// RemoteConfig holds remote service configuration
type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	JWTSecret  string
	JWTSubject string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	baseURL := os.Getenv("REMOTE_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("REMOTE_BASE_URL is required")
	}

	return &Config{
		NodeEnv:    getEnv("NODE_ENV", "development"),
		Port:       getEnv("PORT", "3001"),
		InstanceID: getEnv("INSTANCE_ID", "offsync-local"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "offsync"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Remote: RemoteConfig{
			BaseURL:    baseURL,
			APIKey:     os.Getenv("REMOTE_API_KEY"),
			JWTSecret:  os.Getenv("REMOTE_JWT_SECRET"),
			JWTSubject: getEnv("REMOTE_JWT_SUBJECT", "offsync"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
