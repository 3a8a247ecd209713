package config

import (
	"fmt"
	"strings"

	"github.com/atoll-io/atoll/internal/constants"
	"github.com/atoll-io/atoll/internal/sys/proc"
)

// Config is the tool-wide configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Trace   TraceConfig   `yaml:"trace"`
	Watch   WatchConfig   `yaml:"watch"`
	Kernel  KernelConfig  `yaml:"kernel"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"ATOLL_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"ATOLL_LOG_PRETTY"`
}

// TraceConfig controls the loader call trace layer.
type TraceConfig struct {
	// LoaderCalls turns on call tracing for every image at startup.
	LoaderCalls bool `yaml:"loader_calls" env:"ATOLL_TRACE_LOADER_CALLS"`
}

// WatchConfig controls staleness monitoring of symbol files.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled" env:"ATOLL_WATCH_ENABLED"`
	DebounceMS int  `yaml:"debounce_ms" env:"ATOLL_WATCH_DEBOUNCE_MS"`
}

// KernelConfig controls how kernel symbols are read.
type KernelConfig struct {
	KallsymsPath string `yaml:"kallsyms_path" env:"ATOLL_KALLSYMS_PATH"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMS: constants.DefaultWatchDebounceMS,
		},
		Kernel: KernelConfig{
			KallsymsPath: proc.DefaultKallsymsPath,
		},
	}
}

var logLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if !logLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("config: watch debounce must not be negative, got %d", c.Watch.DebounceMS)
	}
	if c.Kernel.KallsymsPath == "" {
		return fmt.Errorf("config: kallsyms path must not be empty")
	}
	return nil
}
