package webhooks

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/api/responses"
	"github.com/dermashop/dermashop-backend/internal/payments"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
)

type bankTransferPayload struct {
	EventID           string    `json:"event_id"`
	Reference         string    `json:"reference"`
	Amount            int64     `json:"amount"`
	PaidAt            time.Time `json:"paid_at"`
	BankTransactionID string    `json:"bank_transaction_id"`
}

// BankTransfer settles a payment from the bank's transfer notice. A
// redelivered event is acknowledged without being applied again; a failed
// one releases its event id so the bank's retry is processed.
func BankTransfer(svc payments.Service, guard EventGuard, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := readSignedPayload(w, r, secret)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var event bankTransferPayload
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		eventID := strings.TrimSpace(event.EventID)
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event_id is required"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": eventID, "reference": event.Reference})
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]string{"status": payments.ResultAlreadyProcessed})
			return
		}

		result, err := svc.Reconcile(ctx, payments.BankTransferEvent{
			EventID:           eventID,
			Reference:         strings.TrimSpace(event.Reference),
			Amount:            event.Amount,
			PaidAt:            event.PaidAt,
			BankTransactionID: strings.TrimSpace(event.BankTransactionID),
		})
		if err != nil {
			if delErr := guard.Delete(ctx, eventID); delErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", delErr.Error()), "webhook.bank_transfer.guard_release_failed")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "result", result.Status), "webhook.bank_transfer.processed")
		}
		responses.WriteSuccess(w, result)
	}
}
