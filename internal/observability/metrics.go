package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klyr/lure/internal/event"
)

type Metrics struct {
	eventsTotal      *prometheus.CounterVec
	findingsTotal    *prometheus.CounterVec
	timeoutsTotal    *prometheus.CounterVec
	storeErrorsTotal *prometheus.CounterVec
	throttledTotal   prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lure_events_total", Help: "Total recorded events"},
			[]string{"method", "category"},
		),
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lure_findings_total", Help: "Total signature findings"},
			[]string{"category", "pattern"},
		),
		timeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lure_pattern_timeouts_total", Help: "Signature evaluations abandoned after the pattern timeout"},
			[]string{"pattern"},
		),
		storeErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lure_store_errors_total", Help: "Failed store operations"},
			[]string{"op"},
		),
		throttledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "lure_api_throttled_total", Help: "Read API requests rejected by the throttle"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lure_request_duration_seconds",
				Help:    "Decoy request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.eventsTotal,
		m.findingsTotal,
		m.timeoutsTotal,
		m.storeErrorsTotal,
		m.throttledTotal,
		m.requestDuration,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Observe records one persisted event.
func (m *Metrics) Observe(rec event.Record, duration time.Duration) {
	if m == nil {
		return
	}

	m.eventsTotal.WithLabelValues(rec.Event.Method, string(rec.Event.Category)).Inc()
	m.requestDuration.WithLabelValues(rec.Event.Method).Observe(duration.Seconds())

	for _, f := range rec.Findings {
		m.findingsTotal.WithLabelValues(string(f.Category), f.Pattern).Inc()
	}
}

// PatternTimeout matches the scanner's timeout callback.
func (m *Metrics) PatternTimeout(pattern string) {
	if m == nil {
		return
	}
	m.timeoutsTotal.WithLabelValues(pattern).Inc()
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrorsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.throttledTotal.Inc()
}
