package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "debug",
		Pretty: false,
		Output: &buf,
	})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	output := buf.String()

	if !strings.Contains(output, "debug message") {
		t.Error("Expected debug message to be logged at debug level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("Expected info message to be logged at debug level")
	}
}

func TestNew_InfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "info",
		Pretty: false,
		Output: &buf,
	})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	output := buf.String()

	if strings.Contains(output, "debug message") {
		t.Error("Expected debug message to NOT be logged at info level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("Expected info message to be logged at info level")
	}
}

func TestNew_WarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "warn",
		Pretty: false,
		Output: &buf,
	})

	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")

	output := buf.String()

	if strings.Contains(output, "info message") {
		t.Error("Expected info message to NOT be logged at warn level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Expected warn message to be logged at warn level")
	}
}

func TestNew_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "error",
		Pretty: false,
		Output: &buf,
	})

	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()

	if strings.Contains(output, "warn message") {
		t.Error("Expected warn message to NOT be logged at error level")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Expected error message to be logged at error level")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("DefaultConfig() Level = %q, want %q", cfg.Level, "info")
	}
	if cfg.Output == nil {
		t.Error("DefaultConfig() Output = nil, want os.Stderr")
	}
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{
		Level:  "info",
		Pretty: false,
		Output: &buf,
	}, "test-component")

	logger.Info().Msg("test message")

	output := buf.String()

	if !strings.Contains(output, "test-component") {
		t.Error("Expected log to contain component name 'test-component'")
	}
	if !strings.Contains(output, "test message") {
		t.Error("Expected log to contain message 'test message'")
	}
}

func TestNew_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "info",
		Pretty: true,
		Output: &buf,
	})

	logger.Info().Msg("test message")

	// Console writer produces human-readable output, not JSON.
	output := buf.String()
	if strings.Contains(output, `"message"`) {
		t.Error("Expected pretty output, got JSON")
	}
	if !strings.Contains(output, "test message") {
		t.Error("Expected log to contain message 'test message'")
	}
}
