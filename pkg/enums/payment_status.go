package enums

// PaymentStatus tracks the lifecycle of a ledger entry.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var paymentStatuses = domain[PaymentStatus]{"payment status", []PaymentStatus{
	PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded,
}}

// Completed is the only state that can still move, and only to refunded.
var paymentGraph = graph[PaymentStatus]{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool { return paymentGraph.allows(p, next) }

// IsPaid reports whether money was captured for the entry at some point.
func (p PaymentStatus) IsPaid() bool {
	return p == PaymentStatusCompleted || p == PaymentStatusRefunded
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) { return paymentStatuses.parse(raw) }
