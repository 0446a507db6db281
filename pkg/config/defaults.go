package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evidentia/custody/internal/bytesize"
)

// GetDefaultConfig returns a configuration populated with defaults.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in defaults for any unset values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8080"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "api"
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}
	if cfg.Storage.S3.PresignTTL == 0 {
		cfg.Storage.S3.PresignTTL = 15 * time.Minute
	}

	if cfg.Upload.MinPartSize == 0 {
		cfg.Upload.MinPartSize = 5 * bytesize.MiB
	}
	if cfg.Upload.StorageClass == "" {
		cfg.Upload.StorageClass = "STANDARD"
	}
	if cfg.Upload.StateDir == "" {
		cfg.Upload.StateDir = getStateDir()
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = 2.0
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = ":9464"
	}
}

// Validate checks the configuration for inconsistencies.
func Validate(cfg *Config) error {
	level := strings.ToUpper(cfg.Logging.Level)
	switch level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid logging level %q", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}

	switch cfg.Storage.Backend {
	case "api":
		if cfg.API.BaseURL == "" {
			return fmt.Errorf("api.base_url is required for the api backend")
		}
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid storage backend %q (must be \"api\" or \"s3\")", cfg.Storage.Backend)
	}

	if cfg.Upload.MinPartSize < 5*bytesize.MiB {
		return fmt.Errorf("upload.min_part_size must be at least 5Mi, got %s", cfg.Upload.MinPartSize)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if cfg.Retry.Multiplier < 1.0 {
		return fmt.Errorf("retry.multiplier must be at least 1.0")
	}

	return nil
}

// getStateDir returns the directory for persisted upload session state.
//
// Uses XDG_STATE_HOME if set, otherwise ~/.local/state, or falls back to
// the current directory.
func getStateDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "custody")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "custody-state")
	}

	return filepath.Join(home, ".local", "state", "custody")
}
