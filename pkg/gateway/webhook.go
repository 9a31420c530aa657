package gateway

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
)

// WebhookEvent is the envelope of every gateway webhook delivery.
type WebhookEvent struct {
	Entity    string         `json:"entity"`
	AccountID string         `json:"account_id"`
	Event     string         `json:"event"`
	Contains  []string       `json:"contains"`
	Payload   WebhookPayload `json:"payload"`
	CreatedAt int64          `json:"created_at"`
}

// WebhookPayload holds whichever entities the event carries.
type WebhookPayload struct {
	Payment *struct {
		Entity Payment `json:"entity"`
	} `json:"payment,omitempty"`
	Order *struct {
		Entity Order `json:"entity"`
	} `json:"order,omitempty"`
	Refund *struct {
		Entity Refund `json:"entity"`
	} `json:"refund,omitempty"`
}

// ParseWebhookEvent decodes a raw webhook body. Signature verification must
// happen before this is called.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type is required")
	}
	return &event, nil
}

// Payment returns the payment entity if present.
func (e *WebhookEvent) Payment() *Payment {
	if e == nil || e.Payload.Payment == nil {
		return nil
	}
	return &e.Payload.Payment.Entity
}

// Refund returns the refund entity if present.
func (e *WebhookEvent) Refund() *Refund {
	if e == nil || e.Payload.Refund == nil {
		return nil
	}
	return &e.Payload.Refund.Entity
}

// OrderID resolves the gateway order the event refers to.
func (e *WebhookEvent) OrderID() string {
	if e == nil {
		return ""
	}
	if p := e.Payment(); p != nil && p.OrderID != "" {
		return p.OrderID
	}
	if e.Payload.Order != nil {
		return e.Payload.Order.Entity.ID
	}
	return ""
}

// PaymentID resolves the gateway payment the event refers to.
func (e *WebhookEvent) PaymentID() string {
	if e == nil {
		return ""
	}
	if p := e.Payment(); p != nil && p.ID != "" {
		return p.ID
	}
	if r := e.Refund(); r != nil {
		return r.PaymentID
	}
	return ""
}
