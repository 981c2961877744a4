package controllers

import (
	"net/http"

	"github.com/dermashop/dermashop-backend/api/responses"
	"github.com/dermashop/dermashop-backend/api/validators"
	shipmentsvc "github.com/dermashop/dermashop-backend/internal/shipments"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
)

type createShipmentRequest struct {
	Courier        string `json:"courier" validate:"required,max=50"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

// AdminCreateShipment hands a paid order to a courier.
func AdminCreateShipment(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipment service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createShipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tracking, err := svc.Create(r.Context(), shipmentsvc.CreateInput{
			OrderID:        orderID,
			Courier:        validators.SanitizeText(payload.Courier, 50),
			TrackingNumber: validators.SanitizeText(payload.TrackingNumber, 100),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, tracking)
	}
}
