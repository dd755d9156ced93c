package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "sinout", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "sinout-engine", cfg.MQTT.ClientID)

	assert.Equal(t, "sinout/detections/", cfg.Feed.TopicPrefix)
	assert.Equal(t, 64, cfg.Feed.QueueSize)

	assert.Equal(t, 60, cfg.Alert.CooldownSeconds)
	assert.Equal(t, "sinout:cooldown:", cfg.Alert.CooldownKeyPrefix)
	assert.Equal(t, "sinout:rules:changed", cfg.Alert.ChangeChannel)
	assert.Equal(t, "sinout:alerts", cfg.Alert.Stream)
	assert.Equal(t, "", cfg.Alert.WebhookURL)

	assert.Equal(t, 3, cfg.Append.MaxAttempts)
	assert.Equal(t, 100, cfg.Append.BackoffMillis)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, 60*time.Second, cfg.CooldownWindow())
	assert.Equal(t, 30*time.Second, cfg.SnapshotTTL())
	assert.Equal(t, 3*time.Second, cfg.SnapshotTimeout())
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("ALERT_COOLDOWN_SECONDS", "120")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example.com/sinout")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 120, cfg.Alert.CooldownSeconds)
	assert.Equal(t, 120*time.Second, cfg.CooldownWindow())
	assert.Equal(t, "https://hooks.example.com/sinout", cfg.Alert.WebhookURL)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoad_YAMLFile(t *testing.T) {
	os.Clearenv()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
database:
  host: yaml-db
redis:
  addr: yaml-redis:6379
alert:
  cooldown_seconds: 90
timezone: America/Sao_Paulo
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "yaml-db", cfg.Database.Host)
	assert.Equal(t, "yaml-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 90, cfg.Alert.CooldownSeconds)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestLoad_EnvBeatsYAML(t *testing.T) {
	os.Clearenv()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: yaml-db\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_HOST", "env-db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-db", cfg.Database.Host)
}

func TestLocation_InvalidTimezone(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	cfg.Timezone = "Not/AZone"
	_, err = cfg.Location()
	assert.Error(t, err)
}
