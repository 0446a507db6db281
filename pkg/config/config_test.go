package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia/custody/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "api", cfg.Storage.Backend)
	assert.Equal(t, 5*bytesize.MiB, cfg.Upload.MinPartSize)
	assert.Equal(t, "STANDARD", cfg.Upload.StorageClass)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: DEBUG
  format: json
api:
  base_url: https://api.example.com
  timeout: 10s
upload:
  min_part_size: 8Mi
  storage_class: STANDARD_IA
retry:
  max_attempts: 5
  base_delay: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 8*bytesize.MiB, cfg.Upload.MinPartSize)
	assert.Equal(t, "STANDARD_IA", cfg.Upload.StorageClass)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)

	// Unset values still get defaults.
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
}

func TestLoad_S3Backend(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: s3
  s3:
    bucket: evidence
    region: eu-west-1
    endpoint: https://minio.internal:9000
    force_path_style: true
    presign_ttl: 5m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "evidence", cfg.Storage.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Storage.S3.Region)
	assert.True(t, cfg.Storage.S3.ForcePathStyle)
	assert.Equal(t, 5*time.Minute, cfg.Storage.S3.PresignTTL)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "logging:\n  level: LOUD\n"},
		{"bad backend", "storage:\n  backend: ftp\n"},
		{"s3 without bucket", "storage:\n  backend: s3\n"},
		{"part size too small", "upload:\n  min_part_size: 1Mi\n"},
		{"multiplier below one", "retry:\n  multiplier: 0.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvTokenOverride(t *testing.T) {
	t.Setenv("CUSTODY_API_TOKEN", "secret-from-env")

	path := writeConfig(t, "api:\n  base_url: https://api.example.com\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.API.Token)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.Upload.MinPartSize = 16 * bytesize.MiB

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", loaded.Logging.Level)
	assert.Equal(t, 16*bytesize.MiB, loaded.Upload.MinPartSize)
}
