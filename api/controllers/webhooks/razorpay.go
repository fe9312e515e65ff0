package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/cashierhq/cashier-backend/api/responses"
	razorpaywebhook "github.com/cashierhq/cashier-backend/internal/webhooks/razorpay"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/logger"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
)

type RazorpayDispatcher interface {
	Dispatch(ctx context.Context, event *razorpaywebhook.Event) (razorpaywebhook.Outcome, error)
}

type razorpayWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// RazorpayWebhook receives gateway deliveries, verifies their signature and
// hands decoded events to the dispatcher. The gateway retries on non-2xx, so
// conditions the dispatcher can never recover from (unknown event names,
// malformed bodies, handler errors already absorbed as a skip) all acknowledge
// with 200.
func RazorpayWebhook(svc RazorpayDispatcher, verifier signatureVerifier, verifySignature bool, guard razorpayWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if verifySignature {
			signature := r.Header.Get(razorpay.SignatureHeader)
			if verifier == nil || !verifier.VerifyWebhookSignature(payload, signature) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "invalid webhook signature"))
				return
			}
		}

		event, err := razorpaywebhook.ParseEvent(payload)
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"error": err.Error()}), "webhook body not decodable, acknowledging")
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		eventID := strings.TrimSpace(r.Header.Get(razorpay.EventIDHeader))
		if eventID != "" {
			alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency"))
				return
			}
			if alreadyProcessed {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		outcome, err := svc.Dispatch(ctx, event)
		switch outcome {
		case razorpaywebhook.OutcomeHandled:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Webhook Handled"))
		case razorpaywebhook.OutcomeSkipped:
			// Release the guard so the gateway's retry gets a clean attempt.
			if eventID != "" {
				_ = guard.Delete(ctx, eventID)
			}
			if logg != nil && err != nil {
				wctx := logg.WithWebhookEvent(ctx, event.Event)
				logg.Warn(logg.WithFields(wctx, map[string]any{"error": err.Error()}), "webhook handler failed, acknowledging")
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Webhook Skipped"))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}
