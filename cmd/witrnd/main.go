// witrnd is the capture daemon: it supervises the acquisition worker,
// maintains the session log and plot buffers, and exposes the MQTT
// control plane plus HTTP health and metrics endpoints.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/LauH1987/witrn-pd-sniffer/internal/config"
	"github.com/LauH1987/witrn-pd-sniffer/internal/control"
	"github.com/LauH1987/witrn-pd-sniffer/internal/core"
	"github.com/LauH1987/witrn-pd-sniffer/internal/emitter"
	"github.com/LauH1987/witrn-pd-sniffer/internal/logger"
	"github.com/LauH1987/witrn-pd-sniffer/internal/metric"
	"github.com/LauH1987/witrn-pd-sniffer/internal/view"
)

const defaultConfigPath = "config/witrn.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	devicePath := flag.String("device", "", "hidraw device path, overrides config")
	connect := flag.Bool("connect", true, "connect to the device at startup")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		bootLog := logger.New("info", "json")
		bootLog.Error().Err(err).Msg("configuration failed")
		os.Exit(1)
	}
	if *devicePath != "" {
		cfg.Device.Path = *devicePath
	}
	resolveWorkerBinary(cfg)

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format).With().
		Str("service", "witrnd").Logger()
	log.Info().Str("config", *configPath).Str("device", cfg.Device.Path).Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := metric.New()

	var emit *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		emit = emitter.NewMQTTEmitter(log, cfg)
		if err := emit.Connect(); err != nil {
			log.Error().Err(err).Msg("mqtt connect failed")
			os.Exit(1)
		}
		defer emit.Disconnect()
	}

	capture := core.New(log, cfg, view.NewLogView(log), metrics, emit)

	if emit != nil {
		handler := control.NewHandler(log, cfg, emit.Client, control.Callbacks{
			OnConnect:         func() error { return capture.Connect(true) },
			OnDisconnect:      capture.Disconnect,
			OnStart:           capture.Start,
			OnPause:           capture.Pause,
			OnClear:           capture.Clear,
			OnGetStatus:       capture.Status,
			OnExportCSV:       capture.ExportCSV,
			OnImportCSV:       capture.ImportCSV,
			OnSetHideGoodCRC:  func(v bool) error { capture.Scheduler().SetHideGoodCRC(v); return nil },
			OnSetRelativeTime: func(v bool) error { capture.Scheduler().SetRelativeTime(v); return nil },
		})
		if err := handler.Start(ctx); err != nil {
			log.Error().Err(err).Msg("control plane start failed")
			os.Exit(1)
		}
		defer handler.Stop()
	}

	go func() {
		if err := capture.ServeHealth(ctx, cfg.HealthPort); err != nil {
			log.Error().Err(err).Msg("health endpoint failed")
		}
	}()

	if *connect {
		if err := capture.Connect(true); err != nil {
			log.Error().Err(err).Msg("initial connect failed")
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- capture.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal")
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("capture stopped")
		}
	}

	if err := capture.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("final disconnect")
	}
	log.Info().Msg("stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// resolveWorkerBinary prefers a worker sitting next to the daemon
// binary over a bare name resolved through PATH.
func resolveWorkerBinary(cfg *config.Config) {
	if filepath.IsAbs(cfg.Worker.Binary) {
		return
	}
	self, err := os.Executable()
	if err != nil {
		return
	}
	candidate := filepath.Join(filepath.Dir(self), cfg.Worker.Binary)
	if _, err := os.Stat(candidate); err == nil {
		cfg.Worker.Binary = candidate
	}
}
