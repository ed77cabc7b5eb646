package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks cart mutations and checkout outcomes.
type Metrics struct {
	cartOps          *prometheus.CounterVec
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	stockRejections  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_operations_total",
			Help: "Cart operations by kind and result.",
		}, []string{"op", "result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout passes by outcome.",
		}, []string{"outcome"}),
		checkoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "Wall time of a checkout pass.",
			Buckets: prometheus.DefBuckets,
		}),
		stockRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_rejections_total",
			Help: "Requests refused for insufficient stock, by stage.",
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(m.cartOps, m.checkouts, m.checkoutDuration, m.stockRejections)
	}
	return m
}

// Nop returns unregistered collectors, for tests and tools.
func Nop() *Metrics {
	return New(nil)
}

func (m *Metrics) CartOp(op string, err error) {
	m.cartOps.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) Checkout(outcome string, started time.Time) {
	m.checkouts.WithLabelValues(outcome).Inc()
	m.checkoutDuration.Observe(time.Since(started).Seconds())
}

// StockRejected counts an advisory ("add") or authoritative ("checkout") refusal.
func (m *Metrics) StockRejected(stage string) {
	m.stockRejections.WithLabelValues(stage).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
