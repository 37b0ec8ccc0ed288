package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking saga metrics
	BookingAttempts  *prometheus.CounterVec
	BookingLatency   prometheus.Histogram
	BookingConflicts *prometheus.CounterVec

	// Reservation ledger metrics
	ReservationsActive  prometheus.Gauge
	ReservationRetries  prometheus.Counter
	ReservationsExpired prometheus.Counter

	// Slot generation metrics
	SlotGenerationLatency prometheus.Histogram
	SlotsGenerated        prometheus.Counter
}

// NewMetrics creates and registers all application metrics on the
// default registry.
func NewMetrics(namespace, subsystem string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewMetricsWith registers the metrics on reg; tests hand in a fresh
// registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BookingAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "booking_attempts_total",
			Help:      "Booking transactions by outcome",
		}, []string{"outcome"}),
		BookingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "booking_duration_seconds",
			Help:      "Time spent processing booking transactions",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		BookingConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "booking_conflicts_total",
			Help:      "Lost slot races by origin of the winning reservation",
		}, []string{"origin"}),
		ReservationsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reservations_active",
			Help:      "Current number of active slot reservations",
		}),
		ReservationRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reservation_cas_retries_total",
			Help:      "Compare-and-swap retries while reserving slots",
		}),
		ReservationsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reservations_expired_total",
			Help:      "Reservations released by TTL expiry",
		}),
		SlotGenerationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_generation_duration_seconds",
			Help:      "Time spent generating a day's slot grid",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		SlotsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slots_generated_total",
			Help:      "Total slot candidates returned to callers",
		}),
	}
}
