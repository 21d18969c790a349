package checkin

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the loop collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ticks    prometheus.Counter
	captures *prometheus.CounterVec
	analyses *prometheus.CounterVec
	retries  *prometheus.CounterVec
	checkIns prometheus.Counter
	dropped  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	status   prometheus.Gauge
}

// NewMetrics registers the loop collectors on registry. It returns nil when
// registry is nil.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focusbuddy_loop_ticks_total",
			Help: "Total number of capture ticks",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focusbuddy_captures_total",
			Help: "Screen captures by outcome",
		}, []string{"outcome"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focusbuddy_analyses_total",
			Help: "Vision analyses by outcome",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focusbuddy_transient_retries_total",
			Help: "Transient failures retried within a tick",
		}, []string{"stage"}),
		checkIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focusbuddy_checkins_total",
			Help: "Check-in prompts delivered",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focusbuddy_dropped_results_total",
			Help: "Results discarded because the loop was busy or stopped",
		}, []string{"reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "focusbuddy_stage_duration_seconds",
			Help:    "Duration of capture and analysis calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "focusbuddy_loop_degraded",
			Help: "1 while the loop is degraded by repeated failures",
		}),
	}

	registry.MustRegister(
		m.ticks,
		m.captures,
		m.analyses,
		m.retries,
		m.checkIns,
		m.dropped,
		m.latency,
		m.status,
	)
	return m
}

func (m *Metrics) tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) capture(outcome string) {
	if m != nil {
		m.captures.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) analysis(outcome string) {
	if m != nil {
		m.analyses.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) retry(stage string) {
	if m != nil {
		m.retries.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) checkIn() {
	if m != nil {
		m.checkIns.Inc()
	}
}

func (m *Metrics) drop(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observe(stage string, seconds float64) {
	if m != nil {
		m.latency.WithLabelValues(stage).Observe(seconds)
	}
}

func (m *Metrics) setStatus(s Status) {
	if m == nil {
		return
	}
	if s == StatusDegraded {
		m.status.Set(1)
	} else {
		m.status.Set(0)
	}
}
