// Package control is the MQTT command surface of the daemon: connect,
// disconnect, pause, export and display toggles arrive here as JSON
// commands and are dispatched to the capture core through callbacks.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/LauH1987/witrn-pd-sniffer/internal/config"
)

// Command is one control plane request.
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response acknowledges a command.
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Callbacks wires commands into the capture core.
type Callbacks struct {
	OnConnect    func() error
	OnDisconnect func() error
	OnStart      func() error
	OnPause      func() error
	OnClear      func() error

	OnGetStatus func() map[string]any

	OnExportCSV func(path string) (int, error)
	OnImportCSV func(path string) (int, int, error)

	OnSetHideGoodCRC  func(bool) error
	OnSetRelativeTime func(bool) error
}

// Handler subscribes to the control topic and executes commands one at
// a time, in arrival order.
type Handler struct {
	log      zerolog.Logger
	cfg      *config.Config
	client   mqtt.Client
	commands chan Command

	mu        sync.Mutex
	callbacks Callbacks
}

func NewHandler(log zerolog.Logger, cfg *config.Config, client mqtt.Client, callbacks Callbacks) *Handler {
	return &Handler{
		log:       log.With().Str("component", "control").Logger(),
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start subscribes and begins processing.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control

	token := h.client.Subscribe(topic, h.cfg.MQTT.QoS, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control subscription failed: %w", err)
	}
	h.log.Info().Str("topic", topic).Msg("control plane started")

	go h.processCommands(ctx)
	return nil
}

// Stop unsubscribes and drains the queue.
func (h *Handler) Stop() {
	if h.client != nil && h.client.IsConnected() {
		h.client.Unsubscribe(h.cfg.MQTT.Topics.Control).Wait()
	}
	close(h.commands)
	h.log.Info().Msg("control plane stopped")
}

func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.log.Error().Err(err).Msg("unparseable control command")
		h.sendResponse(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	select {
	case h.commands <- cmd:
	default:
		h.log.Warn().Str("command", cmd.Command).Msg("command queue full, dropped")
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

func (h *Handler) handleCommand(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.log.Info().Str("command", cmd.Command).Msg("control command")
	resp := Response{CommandAck: cmd.Command, Status: "ok"}

	err := h.dispatch(cmd, &resp)
	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
	}
	h.sendResponse(resp)
}

func (h *Handler) dispatch(cmd Command, resp *Response) error {
	cb := h.callbacks
	switch cmd.Command {
	case "connect":
		return call(cb.OnConnect)
	case "disconnect":
		return call(cb.OnDisconnect)
	case "start":
		return call(cb.OnStart)
	case "pause":
		return call(cb.OnPause)
	case "clear":
		return call(cb.OnClear)

	case "get_status":
		if cb.OnGetStatus == nil {
			return fmt.Errorf("not supported")
		}
		resp.Data = cb.OnGetStatus()
		return nil

	case "export_csv":
		if cb.OnExportCSV == nil {
			return fmt.Errorf("not supported")
		}
		path, err := stringParam(cmd, "path")
		if err != nil {
			return err
		}
		n, err := cb.OnExportCSV(path)
		if err != nil {
			return err
		}
		resp.Data = map[string]any{"path": path, "events": n}
		return nil

	case "import_csv":
		if cb.OnImportCSV == nil {
			return fmt.Errorf("not supported")
		}
		path, err := stringParam(cmd, "path")
		if err != nil {
			return err
		}
		imported, failed, err := cb.OnImportCSV(path)
		if err != nil {
			return err
		}
		resp.Data = map[string]any{"path": path, "imported": imported, "failed": failed}
		return nil

	case "set_hide_goodcrc":
		return h.boolCommand(cmd, cb.OnSetHideGoodCRC)
	case "set_relative_time":
		return h.boolCommand(cmd, cb.OnSetRelativeTime)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

func (h *Handler) boolCommand(cmd Command, fn func(bool) error) error {
	if fn == nil {
		return fmt.Errorf("not supported")
	}
	v, ok := cmd.Params["enabled"].(bool)
	if !ok {
		return fmt.Errorf("missing boolean param: enabled")
	}
	return fn(v)
}

func call(fn func() error) error {
	if fn == nil {
		return fmt.Errorf("not supported")
	}
	return fn()
}

func stringParam(cmd Command, key string) (string, error) {
	v, ok := cmd.Params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing string param: %s", key)
	}
	return v, nil
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal response")
		return
	}
	token := h.client.Publish(h.cfg.MQTT.Topics.Response, h.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		h.log.Warn().Msg("response publish timeout")
	}
}
