package config

import (
	"os"
	"strconv"
	"time"

	"sheetcrm/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Document DocumentConfig
	Drive    DriveConfig
	Sync     SyncConfig
	Server   ServerConfig
}

// DocumentConfig holds the local CRM document settings
type DocumentConfig struct {
	Path         string
	SeedDemoData bool
}

// DriveConfig holds the remote provider settings. An empty credentials
// file or file ID means the remote side is not configured; that is a
// valid, degraded mode, not a config error.
type DriveConfig struct {
	CredentialsFile string
	FileID          string
}

// SyncConfig holds the periodic sync settings
type SyncConfig struct {
	Enabled  bool
	Interval time.Duration
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Document: DocumentConfig{
			Path:         getEnvOrDefault("CRM_DOCUMENT_PATH", "data/crm.xlsx"),
			SeedDemoData: getEnvBoolOrDefault("CRM_SEED_DEMO_DATA", false),
		},
		Drive: DriveConfig{
			CredentialsFile: getEnvOrDefault("DRIVE_CREDENTIALS_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			FileID:          getEnvOrDefault("DRIVE_FILE_ID", ""),
		},
		Sync: SyncConfig{
			Enabled:  getEnvBoolOrDefault("SYNC_ENABLED", true),
			Interval: getEnvDurationOrDefault("SYNC_INTERVAL", 5*time.Minute),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "release"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// RemoteConfigured reports whether both Drive settings are present.
func (c *Config) RemoteConfigured() bool {
	return c.Drive.CredentialsFile != "" && c.Drive.FileID != ""
}

func validateConfig(config *Config) error {
	if config.Document.Path == "" {
		return errors.ConfigInvalid("CRM_DOCUMENT_PATH must not be empty")
	}
	if config.Sync.Interval < time.Second {
		return errors.ConfigInvalid("SYNC_INTERVAL must be at least 1s")
	}
	if config.Drive.FileID != "" && config.Drive.CredentialsFile == "" {
		return errors.ConfigInvalid("DRIVE_FILE_ID is set but DRIVE_CREDENTIALS_FILE is not")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
