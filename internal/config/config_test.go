package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "witrn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Channels.ProtocolCapacity)
	assert.Equal(t, 500, cfg.Channels.TelemetryCapacity)
	assert.Equal(t, 60000, cfg.Buffers.PlotCapacity)
	assert.Equal(t, 3600, cfg.Buffers.MarkerCapacity)
	assert.True(t, *cfg.Buffers.KeepMarkerHistory)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "witrn/control", cfg.MQTT.Topics.Control)
	assert.Empty(t, cfg.Device.Path, "default device is synthetic")
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
instance_id: bench-7
device:
  path: /dev/hidraw3
channels:
  protocol_capacity: 64
buffers:
  keep_marker_history: false
mqtt:
  broker: tcp://broker:1883
  qos: 1
logging:
  level: debug
  format: console
health_port: 9188
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bench-7", cfg.InstanceID)
	assert.Equal(t, "/dev/hidraw3", cfg.Device.Path)
	assert.Equal(t, 64, cfg.Channels.ProtocolCapacity)
	assert.Equal(t, 500, cfg.Channels.TelemetryCapacity, "unset fields keep defaults")
	assert.False(t, *cfg.Buffers.KeepMarkerHistory)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 9188, cfg.HealthPort)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
channels:
  protocol_capacity: -5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol_capacity")

	path = writeConfig(t, `
mqtt:
  qos: 7
`)
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qos")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
