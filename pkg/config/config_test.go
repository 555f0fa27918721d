package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: development\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "clickhouse", c.Backend.Type)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "pumpwatch.alerts", c.Kafka.AlertTopic)
	assert.Equal(t, "pumpwatch", c.ClickHouse.Database)
	assert.Equal(t, []string{"benzin", "motorin"}, c.Pipeline.Fuels)
	assert.Equal(t, "07:30", c.Pipeline.RunAt)
	assert.Equal(t, 15*time.Second, c.Server.ShutdownTimeout)
	assert.True(t, c.Metrics.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: production
server:
  port: 9001
backend:
  type: kafka
pipeline:
  fuels: [benzin]
  run_at: "06:00"
`))
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9001, c.Server.Port)
	assert.Equal(t, "kafka", c.Backend.Type)
	assert.Equal(t, []string{"benzin"}, c.Pipeline.Fuels)
	assert.Equal(t, "06:00", c.Pipeline.RunAt)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad backend":  "backend:\n  type: postgres\n",
		"bad fuel":     "pipeline:\n  fuels: [kerosene]\n",
		"bad run_at":   "pipeline:\n  run_at: \"25:99\"\n",
		"bad env":      "environment: qa\n",
		"port too big": "server:\n  port: 70000\n",
	}
	for name, content := range cases {
		_, err := Load(writeConfig(t, content))
		assert.Error(t, err, name)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")

	c, err := LoadWithEnv(writeConfig(t, "environment: production\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "ch.internal", c.ClickHouse.Host)
	assert.Equal(t, "redis.internal:6379", c.Redis.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
