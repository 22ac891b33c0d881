package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"TCP_ADDR", "METRICS_ADDR", "LOG_LEVEL", "LOG_FORMAT", "REDIS_ADDR", "INFLUX_URL",
	"INFLUX_TOKEN", "KAFKA_BROKERS", "MQTT_BROKER_URL", "GRPC_SERVER", "PROXY_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8001", cfg.Server.Addr)
	assert.Equal(t, 300*time.Second, cfg.Devices.Refresh)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.False(t, cfg.StaticDevices())
	assert.Equal(t, 1024, cfg.Dispatch.QueueSize)
	assert.False(t, cfg.Filter.Duplicate)
	assert.Empty(t, cfg.Influx.URL)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":5002"
filter:
  invalid: true
  zero: true
  duplicate: true
  distance: 50
  limit: 60s
devices:
  refresh: 2m
  static:
    - id: 7
      imei: "027044702512"
      topic: fleet/7
influx:
  url: http://influx:8086
  org: fleet
  bucket: positions
mqtt:
  broker_url: tcp://mqtt:1883
  qos: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":5002", cfg.Server.Addr)
	assert.Equal(t, ":9000", cfg.Server.MetricsAddr, "defaults survive partial files")
	assert.True(t, cfg.Filter.Duplicate)
	assert.Equal(t, 50.0, cfg.Filter.Distance)
	assert.Equal(t, 60*time.Second, cfg.Filter.Limit)
	assert.Equal(t, 2*time.Minute, cfg.Devices.Refresh)
	require.Len(t, cfg.Devices.Static, 1)
	assert.Equal(t, "fleet/7", cfg.Devices.Static[0].Topic)
	assert.Empty(t, cfg.Redis.Addr, "redis is off unless configured")
	assert.True(t, cfg.StaticDevices())
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  addr: \":5002\"\n")
	t.Setenv("TCP_ADDR", ":6000")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PROXY_ADDR", "proxy:7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Server.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "proxy:7000", cfg.Link.Addr)
}

func TestValidation(t *testing.T) {
	clearEnv(t)

	cases := map[string]string{
		"negative distance":  "redis:\n  addr: redis:6379\nfilter:\n  distance: -1\n",
		"no directory":       "server:\n  addr: \":8001\"\n",
		"static without id":  "devices:\n  static:\n    - imei: \"1\"\n",
		"influx without org": "redis:\n  addr: redis:6379\ninflux:\n  url: http://x\n",
		"bad qos":            "redis:\n  addr: redis:6379\nmqtt:\n  qos: 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestStaticDevicesTakePrecedenceOverRedis(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "redis:6379")
	path := writeConfig(t, "devices:\n  static:\n    - id: 7\n      imei: \"027044702512\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.StaticDevices())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr, "redis still serves latest positions")
}

func TestMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
