package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studentnest/nest-backend/api/responses"
	gatewaywebhook "github.com/studentnest/nest-backend/internal/webhooks/gateway"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/gateway"
	"github.com/studentnest/nest-backend/pkg/logger"
)

const (
	signatureHeader = "X-Signature"
	eventIDHeader   = "X-Event-Id"
	maxWebhookBody  = 1 << 20
)

type GatewayWebhookService interface {
	HandleEvent(ctx context.Context, d gatewaywebhook.Delivery) error
}

type gatewayWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	FirstSeen(ctx context.Context, eventID string) (time.Time, error)
	Release(ctx context.Context, eventID string) error
}

type signatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// GatewayWebhook receives payment gateway events. The body is read raw so the
// signature is checked over the exact bytes that were signed.
func GatewayWebhook(svc GatewayWebhookService, verifier signatureVerifier, guard gatewayWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" || !verifier.VerifyWebhookSignature(payload, signature) {
			if logg != nil {
				logg.Warn(ctx, "gateway webhook signature rejected")
			}
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "invalid webhook signature"))
			return
		}

		event, err := gateway.ParseWebhookEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		eventID := deliveryID(r, payload)

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			if logg != nil {
				if first, err := guard.FirstSeen(ctx, eventID); err == nil && !first.IsZero() {
					ctx = logg.WithField(ctx, "first_seen", first)
				}
				logg.Info(ctx, "gateway webhook duplicate delivery")
			}
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		if err := svc.HandleEvent(ctx, gatewaywebhook.Delivery{EventID: eventID, Body: payload, Event: event}); err != nil {
			if relErr := guard.Release(ctx, eventID); relErr != nil && logg != nil {
				logg.Error(ctx, "release webhook idempotency mark", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}

// deliveryID prefers the gateway's event id header. Without it the body hash
// identifies the delivery, so byte-identical retries still collapse.
func deliveryID(r *http.Request, payload []byte) string {
	if id := strings.TrimSpace(r.Header.Get(eventIDHeader)); id != "" {
		return id
	}
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}
