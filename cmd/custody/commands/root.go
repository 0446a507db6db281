// Package commands implements the CLI commands for the custody client.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/evidentia/custody/internal/logger"
	"github.com/evidentia/custody/pkg/apiclient"
	"github.com/evidentia/custody/pkg/config"
	"github.com/evidentia/custody/pkg/retry"
	s3storage "github.com/evidentia/custody/pkg/storage/s3"
	"github.com/evidentia/custody/pkg/upload"
	badgerstate "github.com/evidentia/custody/pkg/upload/state/badger"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configPath string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "custody",
	Short: "Evidentiary media upload client",
	Long: `custody uploads locally captured evidentiary media to durable remote
storage using chunked, integrity-verified multi-part transfers.

Each captured unit is hashed and chained to its predecessor, interrupted
uploads resume after a restart, and transient transfer failures are retried
with exponential backoff.

Use "custody [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: $XDG_CONFIG_HOME/custody/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig loads the configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  strings.ToLower(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// buildService constructs the upload backend selected by the configuration.
func buildService(cfg *config.Config) (upload.Service, error) {
	switch cfg.Storage.Backend {
	case "api":
		client := apiclient.New(cfg.API.BaseURL)
		if cfg.API.Token != "" {
			client.SetToken(cfg.API.Token)
		}
		if cfg.API.Timeout > 0 {
			client.SetTimeout(cfg.API.Timeout)
		}
		return client, nil
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s3storage.NewFromConfig(ctx, s3storage.Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			KeyPrefix:       cfg.Storage.S3.KeyPrefix,
			ForcePathStyle:  cfg.Storage.S3.ForcePathStyle,
			PresignTTL:      cfg.Storage.S3.PresignTTL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// openStateStore opens the persistent session state store.
func openStateStore(cfg *config.Config) (*badgerstate.Store, error) {
	store, err := badgerstate.Open(cfg.Upload.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

// retryPolicy converts the retry configuration to a policy.
func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Multiplier:  cfg.Retry.Multiplier,
	}
}
