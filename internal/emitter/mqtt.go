// Package emitter publishes capture notices and the live summary to the
// MQTT broker.
package emitter

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/LauH1987/witrn-pd-sniffer/internal/config"
)

// Stats is a snapshot of the emitter counters.
type Stats struct {
	Published uint64
	Errors    uint64
	Connected bool
}

// MQTTEmitter publishes to the notices and summary topics.
type MQTTEmitter struct {
	log zerolog.Logger
	cfg *config.Config

	// Client is exported so the control plane can share the connection.
	Client mqtt.Client

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

func NewMQTTEmitter(log zerolog.Logger, cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		log: log.With().Str("component", "emitter").Logger(),
		cfg: cfg,
	}
}

// Connect establishes the broker session with auto-reconnect.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.MQTT.Broker)
	clientID := e.cfg.MQTT.ClientID
	if clientID == "" {
		clientID = e.cfg.InstanceID
	}
	opts.SetClientID(clientID)
	if e.cfg.MQTT.Username != "" {
		opts.SetUsername(e.cfg.MQTT.Username)
		opts.SetPassword(e.cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		e.log.Info().Str("broker", e.cfg.MQTT.Broker).Msg("mqtt connected")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		e.log.Warn().Err(err).Msg("mqtt connection lost, auto-reconnecting")
	}

	e.Client = mqtt.NewClient(opts)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Disconnect closes the broker session.
func (e *MQTTEmitter) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// PublishNotice announces a session transition.
func (e *MQTTEmitter) PublishNotice(state, notice string) error {
	return e.publish(e.cfg.MQTT.Topics.Notices, map[string]any{
		"instance_id": e.cfg.InstanceID,
		"state":       state,
		"notice":      notice,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// PublishSummary pushes the latest readout.
func (e *MQTTEmitter) PublishSummary(summary any) error {
	return e.publish(e.cfg.MQTT.Topics.Summary, map[string]any{
		"instance_id": e.cfg.InstanceID,
		"summary":     summary,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (e *MQTTEmitter) publish(topic string, v any) error {
	if !e.isConnected() {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	token := e.Client.Publish(topic, e.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish on %s: %w", topic, err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	return nil
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// Stats snapshots the counters.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Published: e.published, Errors: e.errors, Connected: e.connected}
}
