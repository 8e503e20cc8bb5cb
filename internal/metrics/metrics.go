// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "liveness"
	subsystem = "supervisor"
)

// Metrics is the supervisor's counter set.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Cycles          prometheus.Counter
	Feeds           prometheus.Counter
	FeedFailures    prometheus.Counter
	StarvedCycles   prometheus.Counter
	MissedReports   *prometheus.CounterVec
	Expiries        prometheus.Counter
	GateEnabled     prometheus.Gauge
	WatchdogArmed   prometheus.Gauge
	Boots           *prometheus.CounterVec
	StatusWriteFail prometheus.Counter
}

// New registers the counter set on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cycles_total",
			Help: "Polling cycles executed by the supervisor",
		}),
		Feeds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "feeds_total",
			Help: "Watchdog feeds issued after an all-reported drain",
		}),
		FeedFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "feed_failures_total",
			Help: "Feeds the watchdog device rejected",
		}),
		StarvedCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "starved_cycles_total",
			Help: "Cycles in which the feed was withheld",
		}),
		MissedReports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "missed_reports_total",
			Help: "Drains in which a worker had not reported",
		}, []string{"worker"}),
		Expiries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "watchdog_expiries_total",
			Help: "Watchdog expiry events handled",
		}),
		GateEnabled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "gate_enabled",
			Help: "1 while the gated worker may report progress",
		}),
		WatchdogArmed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "watchdog_armed",
			Help: "1 while the watchdog channel is counting",
		}),
		Boots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "boots_total",
			Help: "Boots by reported reset cause",
		}, []string{"cause"}),
		StatusWriteFail: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "status_write_failures_total",
			Help: "Failed status block writes",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Cycle(fed bool, missing []string) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	if fed {
		m.Feeds.Inc()
	} else {
		m.StarvedCycles.Inc()
	}
	for _, w := range missing {
		m.MissedReports.WithLabelValues(w).Inc()
	}
}

func (m *Metrics) FeedFailed() {
	if m == nil {
		return
	}
	m.FeedFailures.Inc()
}

func (m *Metrics) Expired() {
	if m == nil {
		return
	}
	m.Expiries.Inc()
	m.WatchdogArmed.Set(0)
}

func (m *Metrics) Armed() {
	if m == nil {
		return
	}
	m.WatchdogArmed.Set(1)
}

func (m *Metrics) Gate(enabled bool) {
	if m == nil {
		return
	}
	if enabled {
		m.GateEnabled.Set(1)
	} else {
		m.GateEnabled.Set(0)
	}
}

func (m *Metrics) Boot(causes []string) {
	if m == nil {
		return
	}
	for _, c := range causes {
		m.Boots.WithLabelValues(c).Inc()
	}
}

func (m *Metrics) StatusWriteFailed() {
	if m == nil {
		return
	}
	m.StatusWriteFail.Inc()
}
