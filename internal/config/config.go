package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string
	Env      string
	StoreURL string
	KeysDir  string
}

// Load reads configuration from environment variables, after first
// loading a .env file from the working directory if one is present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		StoreURL: os.Getenv("ATTESTLOG_DB"),
		KeysDir:  os.Getenv("ATTESTLOG_KEYS"),
	}

	if cfg.StoreURL == "" {
		cfg.StoreURL = DefaultDBPath()
	}
	if cfg.KeysDir == "" {
		cfg.KeysDir = DefaultKeysDir()
	}

	return cfg
}

// DefaultDBPath returns the fallback SQLite path under the user's home
// directory, or a relative path when the home directory is unknown.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data/attestlog.db"
	}
	return filepath.Join(home, ".attestlog", "attestlog.db")
}

// DefaultKeysDir returns the fallback directory for key files.
func DefaultKeysDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data/keys"
	}
	return filepath.Join(home, ".attestlog", "keys")
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
