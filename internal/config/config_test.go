package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 60*time.Second, cfg.Rates.TTL)
	assert.Equal(t, 180.0, cfg.Rates.Fallback)
	assert.Equal(t, 2*time.Second, cfg.Monitor.ReferenceInterval)
	assert.Equal(t, 3*time.Second, cfg.Monitor.ScanInterval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.ErrorBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Timeout)
	assert.Equal(t, 10, cfg.Monitor.ScanLimit)
	assert.Equal(t, 60*time.Second, cfg.Monitor.ConfirmTimeout)
	assert.Equal(t, 3, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Reconcile.BackoffStep)
	assert.Equal(t, "segmentio", cfg.Kafka.Driver)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SOLANA_MERCHANTWALLET", "FromEnvWa11etFromEnvWa11etFromEnvWa11")

	dir := t.TempDir()
	yml := `
app:
  port: "9000"
solana:
  merchantWallet: FromFileWa11etFromFileWa11etFromFile
monitor:
  timeout: 90s
kafka:
  brokers: ["kafka:9092"]
  driver: sarama
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, "FromEnvWa11etFromEnvWa11etFromEnvWa11", cfg.Solana.MerchantWallet)
	assert.Equal(t, 90*time.Second, cfg.Monitor.Timeout)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sarama", cfg.Kafka.Driver)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("reconcile:\n  maxAttempts: 0\n"), 0o600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}
