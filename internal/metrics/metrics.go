package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline records what happens to orders between checkout and delivery.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	outcomes   *prometheus.CounterVec
	handleTime *prometheus.HistogramVec
	recoveries *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	checkouts  *prometheus.CounterVec
}

// New registers the pipeline metrics on reg.
func New(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		return &Pipeline{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Payment outcomes handled, by kind and result.",
	}, []string{"kind", "result"})
	handleTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_outcome_duration_seconds",
		Help:    "Time spent applying a payment outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	recoveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_recoveries_total",
		Help: "Order reference recoveries, by result.",
	}, []string{"result"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_deliveries_total",
		Help: "Delivered signals seen by shipment tracking, by action taken.",
	}, []string{"action"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Checkout attempts, by result.",
	}, []string{"result"})
	reg.MustRegister(outcomes, handleTime, recoveries, deliveries, checkouts)
	return &Pipeline{
		outcomes:   outcomes,
		handleTime: handleTime,
		recoveries: recoveries,
		deliveries: deliveries,
		checkouts:  checkouts,
	}
}

func (p *Pipeline) ObserveOutcome(kind, result string, took time.Duration) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
	p.handleTime.WithLabelValues(normalizeLabel(kind)).Observe(took.Seconds())
}

func (p *Pipeline) IncRecovery(result string) {
	if p == nil || p.recoveries == nil {
		return
	}
	p.recoveries.WithLabelValues(normalizeLabel(result)).Inc()
}

func (p *Pipeline) IncDelivery(action string) {
	if p == nil || p.deliveries == nil {
		return
	}
	p.deliveries.WithLabelValues(normalizeLabel(action)).Inc()
}

func (p *Pipeline) IncCheckout(result string) {
	if p == nil || p.checkouts == nil {
		return
	}
	p.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
