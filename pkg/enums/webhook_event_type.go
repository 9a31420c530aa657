package enums

// WebhookEventType names the gateway events the reconciler acts on. Any
// other event type is recorded and ignored.
type WebhookEventType string

const (
	WebhookEventPaymentCaptured WebhookEventType = "payment.captured"
	WebhookEventPaymentFailed   WebhookEventType = "payment.failed"
	WebhookEventOrderPaid       WebhookEventType = "order.paid"
	WebhookEventRefundCreated   WebhookEventType = "refund.created"
	WebhookEventRefundProcessed WebhookEventType = "refund.processed"
)
