package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/vendiqhq/vendiq-backend/api/responses"
	"github.com/vendiqhq/vendiq-backend/api/validators"
	"github.com/vendiqhq/vendiq-backend/internal/payments"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
	"github.com/vendiqhq/vendiq-backend/pkg/logger"
)

// paymentsConsumer namespaces the replay-guard keys for this webhook.
const paymentsConsumer = "webhook:payments"

type reconcileGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, id string) (bool, error)
	Delete(ctx context.Context, consumer, id string) error
}

type paymentConfirmationRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	ConfirmationID  string `json:"confirmation_id" validate:"required"`
	Proof           string `json:"proof" validate:"required"`
}

// PaymentConfirmation ingests gateway payment confirmations and reconciles
// them onto orders. The proof check inside the service runs regardless of
// the replay guard, so a tampered retry never reaches the database.
func PaymentConfirmation(svc payments.Service, guard reconcileGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		var body paymentConfirmationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		confirmationID := strings.TrimSpace(body.ConfirmationID)
		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, paymentsConsumer, confirmationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		order, err := svc.Reconcile(ctx, payments.ReconcileInput{
			PaymentIntentID: body.PaymentIntentID,
			ConfirmationID:  confirmationID,
			Proof:           body.Proof,
		})
		if err != nil {
			// Release the guard so the gateway's retry can land once the
			// underlying problem clears.
			_ = guard.Delete(ctx, paymentsConsumer, confirmationID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithOrderID(ctx, order.ID.String())
			logg.Info(logCtx, "payment confirmation processed")
		}
		responses.WriteSuccess(w, map[string]any{
			"order_id": order.ID,
			"status":   order.Status,
		})
	}
}
