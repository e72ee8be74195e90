package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox delivery outcomes.
const (
	DeliveryPublished  = "published"
	DeliveryRetry      = "retry"
	DeliveryDeadLetter = "dead_letter"
)

// OutboxMetrics follows the relay that moves outbox rows to the broker.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	batchSize  prometheus.Histogram
	batchTime  prometheus.Histogram
	pending    prometheus.Gauge
	oldestAge  prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox rows handled by the relay, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_rows",
			Help:      "Rows claimed per relay batch.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		batchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Time spent on one relay batch including broker round trips.",
			Buckets:   prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pending_rows",
			Help:      "Unpublished outbox rows still eligible for delivery.",
		}),
		oldestAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "oldest_pending_age_seconds",
			Help:      "Age of the oldest unpublished outbox row, zero when drained.",
		}),
	}
	reg.MustRegister(m.deliveries, m.batchSize, m.batchTime, m.pending, m.oldestAge)
	return m
}

func (m *OutboxMetrics) ObserveDelivery(eventType, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(rows int, took time.Duration) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Observe(float64(rows))
	m.batchTime.Observe(took.Seconds())
}

// SetBacklog records the relay backlog seen while idle.
func (m *OutboxMetrics) SetBacklog(pending int64, oldest time.Duration) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.oldestAge.Set(oldest.Seconds())
}
