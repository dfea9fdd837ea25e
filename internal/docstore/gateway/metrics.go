package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "carelog"

// Metrics instruments the gateway. A nil *Metrics records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	subscriptions prometheus.Gauge
	deliveries    *prometheus.CounterVec
	feedFailures  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "docstore",
			Name:      "operations_total",
			Help:      "Document store operations by operation and result.",
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "docstore",
			Name:      "operation_duration_seconds",
			Help:      "Latency of document store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "docstore",
			Name:      "active_subscriptions",
			Help:      "Live collection subscriptions.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "docstore",
			Name:      "subscription_deliveries_total",
			Help:      "Snapshot deliveries to subscription handlers by result.",
		}, []string{"result"}),
		feedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "docstore",
			Name:      "change_feed_failures_total",
			Help:      "Change notices that could not be published.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.latency, m.subscriptions, m.deliveries, m.feedFailures)
	}
	return m
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) subscriptionOpened() {
	if m != nil {
		m.subscriptions.Inc()
	}
}

func (m *Metrics) subscriptionClosed() {
	if m != nil {
		m.subscriptions.Dec()
	}
}

func (m *Metrics) delivered(err error) {
	if m != nil {
		m.deliveries.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) feedFailed() {
	if m != nil {
		m.feedFailures.Inc()
	}
}
