package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  logrus.Level
	Format string
}

// DefaultLogConfig is info level with JSON output.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: logrus.InfoLevel, Format: "json"}
}

func loadLogConfig() (LogConfig, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	format := strings.ToLower(getEnv("LOG_FORMAT", "json"))
	if format != "json" && format != "text" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT: %q", format)
	}

	return LogConfig{Level: level, Format: format}, nil
}

// NewLogger builds a logger writing to stderr at exactly cfg.Level. The zero
// Level is logrus.PanicLevel, so callers without a config should pass
// DefaultLogConfig.
func NewLogger(cfg LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger.SetLevel(cfg.Level)

	return logger
}
