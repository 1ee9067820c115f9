package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/m7moud/tcp-queue/internal/queue"
	"github.com/m7moud/tcp-queue/internal/worker"
)

// Config holds the application configuration
type Config struct {
	Server       queue.ServerConfig
	Log          LogConfig
	ReaderConfig worker.FileReaderConfig
	WriterConfig worker.FileWriterConfig
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	addr := getEnv("QUEUE_ADDR", queue.DefaultAddr)
	inputFile := getEnv("INPUT_FILE", "input.txt")
	outputFile := getEnv("OUTPUT_FILE", "output.txt")

	timeout, err := getEnvDuration("CONN_TIMEOUT", queue.DefaultTimeout.String())
	if err != nil {
		return nil, err
	}

	maxRequest, err := getEnvInt("MAX_REQUEST_BYTES", strconv.Itoa(queue.DefaultMaxRequestBytes))
	if err != nil {
		return nil, err
	}

	batchSize, err := getEnvInt("BATCH_SIZE", "100")
	if err != nil {
		return nil, err
	}

	bufferSize, err := getEnvInt("BUFFER_SIZE", "65536")
	if err != nil {
		return nil, err
	}

	flushInterval, err := getEnvDuration("FLUSH_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}

	pollInterval, err := getEnvDuration("POLL_INTERVAL", "100ms")
	if err != nil {
		return nil, err
	}

	appendMode := getEnvBool("APPEND_MODE", false)

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: queue.ServerConfig{
			Addr: addr,
			Handler: queue.HandlerConfig{
				Timeout:         timeout,
				MaxRequestBytes: int64(maxRequest),
			},
		},
		Log: logCfg,
		ReaderConfig: worker.FileReaderConfig{
			InputFile:  inputFile,
			BatchSize:  batchSize,
			BufferSize: bufferSize,
		},
		WriterConfig: worker.FileWriterConfig{
			OutputFile:    outputFile,
			BatchSize:     batchSize,
			FlushInterval: flushInterval,
			PollInterval:  pollInterval,
			AppendMode:    appendMode,
		},
	}, nil
}

// LoadReaderConfig loads configuration for reader only
func LoadReaderConfig() (*worker.FileReaderConfig, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return &cfg.ReaderConfig, nil
}

// LoadWriterConfig loads configuration for writer only
func LoadWriterConfig() (*worker.FileWriterConfig, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return &cfg.WriterConfig, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) (int, error) {
	value, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", key, value)
	}
	return value, nil
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %s", key, value)
	}
	return value, nil
}
