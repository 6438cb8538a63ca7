// Package config loads and validates the daemon configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// InstanceID labels this capture instance in topics and logs.
	// Generated when empty.
	InstanceID string `yaml:"instance_id"`

	Device   DeviceConfig   `yaml:"device"`
	Worker   WorkerConfig   `yaml:"worker"`
	Channels ChannelsConfig `yaml:"channels"`
	Buffers  BuffersConfig  `yaml:"buffers"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Display  DisplayConfig  `yaml:"display"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging"`

	// HealthPort serves /health, /readiness and /metrics. 0 disables it.
	HealthPort int `yaml:"health_port"`
}

type DeviceConfig struct {
	// Path is the hidraw node. Empty selects the synthetic device.
	Path string `yaml:"path"`
}

type WorkerConfig struct {
	// Binary is the acquisition worker executable. Defaults to
	// witrn-worker next to the daemon binary.
	Binary string `yaml:"binary"`
}

type ChannelsConfig struct {
	ProtocolCapacity  int `yaml:"protocol_capacity"`
	TelemetryCapacity int `yaml:"telemetry_capacity"`
}

type BuffersConfig struct {
	PlotCapacity      int     `yaml:"plot_capacity"`
	MarkerCapacity    int     `yaml:"marker_capacity"`
	WindowSeconds     float64 `yaml:"window_seconds"`
	KeepMarkerHistory *bool   `yaml:"keep_marker_history"`
}

type ConsumerConfig struct {
	TickMillis int `yaml:"tick_ms"`
	Burst      int `yaml:"burst"`
}

type DisplayConfig struct {
	HideGoodCRC  bool `yaml:"hide_goodcrc"`
	RelativeTime bool `yaml:"relative_time"`
}

type MQTTConfig struct {
	// Broker is the URL, e.g. tcp://localhost:1883. Empty disables the
	// MQTT surface entirely.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`

	Topics TopicsConfig `yaml:"topics"`
}

type TopicsConfig struct {
	Control  string `yaml:"control"`
	Response string `yaml:"response"`
	Notices  string `yaml:"notices"`
	Summary  string `yaml:"summary"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a runnable configuration without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.Worker.Binary == "" {
		c.Worker.Binary = "witrn-worker"
	}
	if c.Channels.ProtocolCapacity == 0 {
		c.Channels.ProtocolCapacity = 1000
	}
	if c.Channels.TelemetryCapacity == 0 {
		c.Channels.TelemetryCapacity = 500
	}
	if c.Buffers.PlotCapacity == 0 {
		c.Buffers.PlotCapacity = 60000
	}
	if c.Buffers.MarkerCapacity == 0 {
		c.Buffers.MarkerCapacity = 3600
	}
	if c.Buffers.WindowSeconds == 0 {
		c.Buffers.WindowSeconds = 60
	}
	if c.Buffers.KeepMarkerHistory == nil {
		keep := true
		c.Buffers.KeepMarkerHistory = &keep
	}
	if c.Consumer.TickMillis == 0 {
		c.Consumer.TickMillis = 10
	}
	if c.Consumer.Burst == 0 {
		c.Consumer.Burst = 256
	}
	if c.MQTT.Topics.Control == "" {
		c.MQTT.Topics.Control = "witrn/control"
	}
	if c.MQTT.Topics.Response == "" {
		c.MQTT.Topics.Response = "witrn/response"
	}
	if c.MQTT.Topics.Notices == "" {
		c.MQTT.Topics.Notices = "witrn/notices"
	}
	if c.MQTT.Topics.Summary == "" {
		c.MQTT.Topics.Summary = "witrn/summary"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) Validate() error {
	if c.Channels.ProtocolCapacity < 1 {
		return fmt.Errorf("channels.protocol_capacity must be positive")
	}
	if c.Channels.TelemetryCapacity < 1 {
		return fmt.Errorf("channels.telemetry_capacity must be positive")
	}
	if c.Buffers.PlotCapacity < 1 {
		return fmt.Errorf("buffers.plot_capacity must be positive")
	}
	if c.Buffers.WindowSeconds <= 0 {
		return fmt.Errorf("buffers.window_seconds must be positive")
	}
	if c.Consumer.TickMillis < 1 {
		return fmt.Errorf("consumer.tick_ms must be positive")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("health_port out of range")
	}
	return nil
}
