package metrics

import "github.com/prometheus/client_golang/prometheus"

// Fulfillment outcomes.
const (
	FulfillmentCreated   = "created"
	FulfillmentDuplicate = "duplicate"
	FulfillmentExhausted = "exhausted"
	FulfillmentRefunded  = "refunded"
	FulfillmentError     = "error"
)

// PaymentMetrics counts ledger transitions and fulfillment outcomes.
type PaymentMetrics struct {
	transitions *prometheus.CounterVec
	fulfillment *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_transitions_total",
		Help:      "Ledger status transitions by origin.",
	}, []string{"from", "to", "source"})
	fulfillment := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fulfillment_total",
		Help:      "Fulfillment dispatch outcomes.",
	}, []string{"outcome"})
	reg.MustRegister(transitions, fulfillment)
	return &PaymentMetrics{transitions: transitions, fulfillment: fulfillment}
}

// Transition records a ledger status change. source is verify, webhook,
// sweep, booking or fulfillment.
func (m *PaymentMetrics) Transition(from, to, source string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(labelOrUnknown(from), labelOrUnknown(to), labelOrUnknown(source)).Inc()
}

func (m *PaymentMetrics) Fulfillment(outcome string) {
	if m == nil || m.fulfillment == nil {
		return
	}
	m.fulfillment.WithLabelValues(labelOrUnknown(outcome)).Inc()
}
