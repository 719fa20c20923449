package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kumarlokesh/headcache/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsApplyWithoutConfigFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.Topiccache.PollTimeout)
	assert.Equal(t, 3*time.Second, cfg.Topiccache.CleanInterval)
	assert.Equal(t, 100_000, cfg.Topiccache.MaxSize)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.SeedBrokers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
topiccache:
  max_size: 5000
kafka:
  seed_brokers:
    - broker-1:9092
    - broker-2:9092
  topics:
    - orders
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Topiccache.MaxSize)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.SeedBrokers)
	assert.Equal(t, []string{"orders"}, cfg.Kafka.Topics)
	// Untouched defaults survive the partial override.
	assert.Equal(t, 10*time.Millisecond, cfg.Topiccache.PollTimeout)
}

func TestLoad_MissingConfigFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_RequiresTopicsAndBrokers(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err, "no topics configured by default")

	cfg.Kafka.Topics = []string{"orders"}
	require.NoError(t, cfg.Validate())

	cfg.Topiccache.MaxSize = 0
	require.Error(t, cfg.Validate())
}
