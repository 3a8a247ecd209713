// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/atoll-io/atoll/internal/constants"
	"github.com/atoll-io/atoll/internal/privilege"
)

// Loader handles loading and saving the configuration file.
type Loader struct {
	baseDir string
}

// NewLoader creates a config loader. The config directory is resolved
// in this order:
//  1. ATOLL_CONFIG environment variable, used as given.
//  2. .atoll under the user home directory.
//  3. /tmp/atoll-fallback for containers without a home directory,
//     where Load still returns defaults with env overrides applied.
func NewLoader() *Loader {
	if dir := os.Getenv("ATOLL_CONFIG"); dir != "" {
		return &Loader{baseDir: dir}
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return &Loader{baseDir: filepath.Join(homeDir, constants.DefaultDir)}
	}
	return &Loader{baseDir: "/tmp/atoll-fallback"}
}

// ConfigPath returns the path of the config file.
func (l *Loader) ConfigPath() string {
	return filepath.Join(l.baseDir, constants.ConfigFile)
}

// HistoryPath returns the path of the shell history file.
func (l *Loader) HistoryPath() string {
	return filepath.Join(l.baseDir, constants.HistoryFile)
}

// Load reads the configuration, falling back to defaults when the file
// does not exist, and applies environment overrides on top.
func (l *Loader) Load() (*Config, error) {
	path := l.ConfigPath()

	config := Default()
	if _, err := os.Stat(path); err == nil {
		//nolint:gosec // G304: Path is from the user's config directory.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := MergeFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration. Ownership is handed back to the
// invoking user when running under sudo.
func (l *Loader) Save(config *Config) error {
	path := l.ConfigPath()

	dir := filepath.Dir(path)
	//nolint:gosec // G301: Directory needs standard permissions for traversal.
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := privilege.FixFileOwnership(dir); err != nil {
		log.Printf("warning: failed to fix directory ownership: %v", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	//nolint:gosec // G306: Config file is not sensitive.
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := privilege.FixFileOwnership(path); err != nil {
		log.Printf("warning: failed to fix file ownership: %v", err)
	}
	return nil
}
