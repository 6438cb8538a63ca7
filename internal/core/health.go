package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/LauH1987/witrn-pd-sniffer/internal/types"
)

// HealthStatus is the JSON body of the /health endpoint.
type HealthStatus struct {
	Status        string  `json:"status"` // "healthy", "degraded", "unhealthy"
	State         string  `json:"state"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	WorkerUp      bool    `json:"worker_up"`
	MQTTConnected bool    `json:"mqtt_connected"`
	Events        int     `json:"events"`
	PlotSamples   int     `json:"plot_samples"`
	DropRate      float64 `json:"drop_rate"`
}

var started = time.Now()

// HealthCheck summarizes liveness. A closed session is still healthy:
// the daemon is up, just not capturing. Degraded means a configured
// surface (broker) is down, unhealthy means an opening session that
// never acknowledged.
func (c *Capture) HealthCheck() HealthStatus {
	c.mu.Lock()
	state := c.state
	sup := c.sup
	telc, pdc := c.telemetry, c.protocol
	c.mu.Unlock()

	hs := HealthStatus{
		Status:        "healthy",
		State:         state.String(),
		UptimeSeconds: int64(time.Since(started).Seconds()),
		WorkerUp:      sup != nil && sup.Running(),
		Events:        c.events.Len(),
		PlotSamples:   c.buffer.Len(),
	}

	pd := pdc.Stats()
	tel := telc.Stats()
	total := pd.Published + pd.Dropped + tel.Published + tel.Dropped
	if total > 0 {
		hs.DropRate = float64(pd.Dropped+tel.Dropped) / float64(total)
	}

	if c.emit != nil {
		hs.MQTTConnected = c.emit.Stats().Connected
		if !hs.MQTTConnected {
			hs.Status = "degraded"
		}
	}
	if state == types.StateOpening && !hs.WorkerUp {
		hs.Status = "unhealthy"
	}
	return hs
}

// ServeHealth runs the health endpoint until ctx is cancelled. Port 0
// disables it.
func (c *Capture) ServeHealth(ctx context.Context, port int) error {
	if port == 0 {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		hs := c.HealthCheck()
		code := http.StatusOK
		if hs.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(hs)
	})
	mux.HandleFunc("/readiness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if c.metrics != nil {
		mux.Handle("/metrics", c.metrics.Handler())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	c.log.Info().Int("port", port).Msg("health endpoint up")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		return err
	}
}
