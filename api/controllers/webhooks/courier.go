package webhooks

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/api/responses"
	"github.com/dermashop/dermashop-backend/internal/shipments"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
)

type courierPayload struct {
	EventID        string    `json:"event_id"`
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	Description    string    `json:"description"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Courier records a tracking update posted by the courier integration.
func Courier(svc shipments.Service, guard EventGuard, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipment service unavailable"))
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

		var event courierPayload
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
			ctx = logg.WithFields(ctx, map[string]any{"event_id": eventID, "tracking_number": event.TrackingNumber})
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]string{"status": "already_processed"})
			return
		}

		err = svc.HandleCourierEvent(ctx, shipments.CourierEvent{
			EventID:        eventID,
			TrackingNumber: strings.TrimSpace(event.TrackingNumber),
			Status:         enums.ShipmentStatus(strings.ToLower(strings.TrimSpace(event.Status))),
			Description:    strings.TrimSpace(event.Description),
			OccurredAt:     event.OccurredAt,
		})
		if err != nil {
			if delErr := guard.Delete(ctx, eventID); delErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", delErr.Error()), "webhook.courier.guard_release_failed")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "webhook.courier.processed")
		}
		responses.WriteSuccess(w, map[string]string{"status": "recorded"})
	}
}
