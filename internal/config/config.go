package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings backends.
const (
	BackendLocal          = "local"
	BackendDynamoDB       = "dynamodb"
	BackendSecretsManager = "secretsmanager"
)

// Config holds application configuration
type Config struct {
	SettingsBackend string `json:"settings_backend"`
	SettingsPath    string `json:"settings_path"`
	BookmarksPath   string `json:"bookmarks_path"`
	AWSRegion       string `json:"aws_region"`
	TableName       string `json:"table_name"`
	UserID          string `json:"user_id"`
	SecretPrefix    string `json:"secret_prefix"`
	ConfigPath      string `json:"-"` // Not stored, just for reference
}

// HomeDir returns ~/.bmlock, falling back to the working directory.
func HomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".bmlock"
	}
	return filepath.Join(homeDir, ".bmlock")
}

// BackupDir returns the directory backups are written to by default.
func (c *Config) BackupDir() string {
	return filepath.Join(filepath.Dir(c.ConfigPath), "backups")
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	dir := HomeDir()
	return &Config{
		SettingsBackend: BackendLocal,
		SettingsPath:    filepath.Join(dir, "settings.json"),
		BookmarksPath:   filepath.Join(dir, "bookmarks.db"),
		AWSRegion:       "us-west-2",
		TableName:       "bmlock_settings",
		UserID:          "default",
		SecretPrefix:    "bmlock/",
		ConfigPath:      filepath.Join(dir, "config.json"),
	}
}

// LoadConfig loads configuration from the default path.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfig().ConfigPath)
}

// LoadConfigFrom loads configuration from path. A missing file yields the
// defaults; fields absent from the file keep their default values.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.ConfigPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the backend name and the fields it needs.
func (c *Config) Validate() error {
	switch c.SettingsBackend {
	case BackendLocal:
		if c.SettingsPath == "" {
			return fmt.Errorf("settings_path is required for the %s backend", BackendLocal)
		}
	case BackendDynamoDB:
		if c.TableName == "" || c.UserID == "" {
			return fmt.Errorf("table_name and user_id are required for the %s backend", BackendDynamoDB)
		}
	case BackendSecretsManager:
	default:
		return fmt.Errorf("unknown settings_backend %q (want %s, %s or %s)",
			c.SettingsBackend, BackendLocal, BackendDynamoDB, BackendSecretsManager)
	}
	if c.BookmarksPath == "" {
		return fmt.Errorf("bookmarks_path is required")
	}
	return nil
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.ConfigPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
