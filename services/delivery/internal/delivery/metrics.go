package delivery

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts lifecycle outcomes. A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	rejections  prometheus.Counter
	checkouts   *prometheus.CounterVec
	subscribers prometheus.Gauge
	gatherer    prometheus.Gatherer
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "order_transitions_total",
			Help:      "Order transition attempts by operation and outcome.",
		}, []string{"operation", "outcome"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "order_rejections_total",
			Help:      "Orders rejected by couriers.",
		}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "delivery",
			Name:      "feed_subscribers",
			Help:      "Live order view subscriptions currently open.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.transitions, m.rejections, m.checkouts, m.subscribers)
	return m
}

func (m *Metrics) transition(op Operation, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(op), outcome(err)).Inc()
}

func (m *Metrics) rejection() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

func (m *Metrics) checkout(err error) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) subscriberDelta(delta float64) {
	if m == nil {
		return
	}
	m.subscribers.Add(delta)
}

// RegisterRoutes exposes /metrics on the service router.
func (m *Metrics) RegisterRoutes(r chi.Router) {
	var h http.Handler = promhttp.Handler()
	if m != nil && m.gatherer != nil {
		h = promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	}
	r.Handle("/metrics", h)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "rejected"
	}
}
