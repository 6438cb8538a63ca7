// Package metric exposes the capture pipeline's Prometheus counters on
// a private registry, keeping default-registry noise out of the scrape.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LauH1987/witrn-pd-sniffer/internal/eventbus"
)

// ChannelStatSource is one bounded channel whose publish/drop counters
// are read at scrape time.
type ChannelStatSource interface {
	Name() string
	Stats() eventbus.Stats
}

type Metrics struct {
	registry *prometheus.Registry
	channels *channelCollector

	EventsTotal  prometheus.Counter
	SamplesTotal prometheus.Counter
	Refreshes    *prometheus.CounterVec
	ConnState    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		channels: newChannelCollector(),
	}

	m.EventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "witrn",
		Name:      "protocol_events_total",
		Help:      "Protocol events appended to the session log.",
	})

	m.SamplesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "witrn",
		Name:      "telemetry_samples_total",
		Help:      "Telemetry samples consumed.",
	})

	m.Refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "witrn",
		Name:      "list_refreshes_total",
		Help:      "Event list refreshes by mode.",
	}, []string{"mode"})

	m.ConnState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "witrn",
		Name:      "connection_state",
		Help:      "Current session state (0 closed, 1 opening, 2 paused, 3 collecting).",
	})

	m.registry.MustRegister(
		m.channels,
		m.EventsTotal,
		m.SamplesTotal,
		m.Refreshes,
		m.ConnState,
	)
	return m
}

// WatchChannel exports a channel's counters under its name. Registering
// the same name again, as a reconnect does, replaces the source.
func (m *Metrics) WatchChannel(src ChannelStatSource) {
	m.channels.watch(src)
}

// ObserveRefresh satisfies the refresh scheduler's observer hook.
func (m *Metrics) ObserveRefresh(mode string) {
	m.Refreshes.WithLabelValues(mode).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// channelCollector reads channel counters live at scrape time instead
// of mirroring them into CounterVecs that would have to be incremented
// at every publish site.
type channelCollector struct {
	mu      sync.Mutex
	sources map[string]ChannelStatSource

	published *prometheus.Desc
	dropped   *prometheus.Desc
}

func newChannelCollector() *channelCollector {
	return &channelCollector{
		sources: make(map[string]ChannelStatSource),
		published: prometheus.NewDesc("witrn_records_published_total",
			"Records accepted onto a bounded channel.", []string{"channel"}, nil),
		dropped: prometheus.NewDesc("witrn_records_dropped_total",
			"Records rejected because a bounded channel was full.", []string{"channel"}, nil),
	}
}

func (cc *channelCollector) watch(src ChannelStatSource) {
	cc.mu.Lock()
	cc.sources[src.Name()] = src
	cc.mu.Unlock()
}

func (cc *channelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cc.published
	ch <- cc.dropped
}

func (cc *channelCollector) Collect(ch chan<- prometheus.Metric) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for name, src := range cc.sources {
		s := src.Stats()
		ch <- prometheus.MustNewConstMetric(cc.published, prometheus.CounterValue, float64(s.Published), name)
		ch <- prometheus.MustNewConstMetric(cc.dropped, prometheus.CounterValue, float64(s.Dropped), name)
	}
}
