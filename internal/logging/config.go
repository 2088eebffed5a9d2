package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config selects output, encoding, and verbosity. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
	// OutputPath is "stdout", "stderr", or a file path.
	OutputPath string `koanf:"output_path"`
	// Development switches to console encoding with caller annotation
	// and a debug floor, regardless of Level and Format.
	Development bool `koanf:"development"`
}

// DefaultConfig returns production defaults: info-level JSON on stdout.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
	}
}

// Validate checks the config before a logger is built from it.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output path must not be empty")
	}
	return nil
}

// ParseLevel parses a zap level name.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
