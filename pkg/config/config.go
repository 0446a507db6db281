// Package config loads and validates the custody client configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/evidentia/custody/internal/bytesize"
)

// Config represents the custody client configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (CUSTODY_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// API configures the custody API backend
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Storage selects and configures the upload backend
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Upload controls chunking and session persistence
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`

	// Retry governs part transfer retries
	Retry RetryConfig `mapstructure:"retry" yaml:"retry"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log output format: "text" or "json"
	Format string `mapstructure:"format" yaml:"format"`
}

// APIConfig configures the custody API backend.
type APIConfig struct {
	// BaseURL is the custody API base URL
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Token authenticates API requests.
	// Environment variable override: CUSTODY_API_TOKEN
	Token string `mapstructure:"token" yaml:"token,omitempty"`

	// Timeout is the per-request timeout
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StorageConfig selects the upload backend.
type StorageConfig struct {
	// Backend is "api" (custody API negotiates parts) or "s3" (direct S3
	// access with presigned part URLs)
	Backend string `mapstructure:"backend" yaml:"backend"`

	// S3 configures the direct S3 backend
	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures the direct S3 backend.
type S3Config struct {
	Bucket          string        `mapstructure:"bucket" yaml:"bucket"`
	Region          string        `mapstructure:"region" yaml:"region"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string        `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string        `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	KeyPrefix       string        `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	ForcePathStyle  bool          `mapstructure:"force_path_style" yaml:"force_path_style"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl" yaml:"presign_ttl"`
}

// UploadConfig controls chunking and session persistence.
type UploadConfig struct {
	// MinPartSize is the automatic flush threshold. Must be at least the
	// storage provider's 5 MiB minimum.
	MinPartSize bytesize.ByteSize `mapstructure:"min_part_size" yaml:"min_part_size"`

	// StorageClass selects the durability tier of the stored object
	StorageClass string `mapstructure:"storage_class" yaml:"storage_class"`

	// StateDir is where upload session state is persisted for restart
	// resumability
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
}

// RetryConfig governs part transfer retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns on the metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddress is the metrics HTTP listen address
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		applyEnvOverrides(v, cfg)
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(v, &cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  custody init\n\n"+
				"Or specify a custom config file:\n"+
				"  custody <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  custody init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600 because the config may contain API tokens and S3 credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: CUSTODY_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CUSTODY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns whether
// a file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// applyEnvOverrides applies environment overrides for secrets, which are
// commonly injected without a config file entry.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if token := v.GetString("api.token"); token != "" {
		cfg.API.Token = token
	}
	if key := v.GetString("storage.s3.access_key_id"); key != "" {
		cfg.Storage.S3.AccessKeyID = key
	}
	if secret := v.GetString("storage.s3.secret_access_key"); secret != "" {
		cfg.Storage.S3.SecretAccessKey = secret
	}
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize, so
// config files can use human-readable sizes like "5Mi" or "8MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, so config files can
// use durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "custody")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "custody")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
