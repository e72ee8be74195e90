package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dante"

// Reservation outcomes reported by the reservation engine.
const (
	OutcomeReserved          = "reserved"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeBusy              = "busy"
	OutcomeError             = "error"
)

// InventoryMetrics counts ledger movements and reservation lifecycle outcomes.
type InventoryMetrics struct {
	movements    *prometheus.CounterVec
	units        *prometheus.CounterVec
	reservations *prometheus.CounterVec
	commits      *prometheus.CounterVec
	expired      prometheus.Counter
}

func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	m := &InventoryMetrics{
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_movements_total",
			Help:      "Stock movements written by the ledger.",
		}, []string{"reason"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_movement_units_total",
			Help:      "Absolute units moved by the ledger.",
		}, []string{"reason"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Order reservation attempts by outcome.",
		}, []string{"outcome"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_commits_total",
			Help:      "Allocation commit attempts by outcome.",
		}, []string{"outcome"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_expired_total",
			Help:      "Orders whose reservation was reclaimed after the hold window.",
		}),
	}
	reg.MustRegister(m.movements, m.units, m.reservations, m.commits, m.expired)
	return m
}

func (m *InventoryMetrics) ObserveMovement(reason string, qty int) {
	if m == nil || m.movements == nil {
		return
	}
	if qty < 0 {
		qty = -qty
	}
	m.movements.WithLabelValues(normalizeLabel(reason)).Inc()
	m.units.WithLabelValues(normalizeLabel(reason)).Add(float64(qty))
}

func (m *InventoryMetrics) ObserveReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *InventoryMetrics) ObserveCommit(outcome string) {
	if m == nil || m.commits == nil {
		return
	}
	m.commits.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *InventoryMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}
