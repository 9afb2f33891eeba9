package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "mongo", cfg.Database.Driver)
	assert.Equal(t, []string{"localhost:27017"}, cfg.Database.Hosts)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Collab.LivenessTimeout)
	assert.Equal(t, time.Second, cfg.Collab.PositionDebounce)
	assert.Equal(t, 0.8, cfg.LLM.Breaker.FailureThreshold)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_DRIVER=memory\nKAFKA_BROKERS=a:1,b:2\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_DRIVER")
		os.Unsetenv("KAFKA_BROKERS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
