package orders

import (
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/google/uuid"
)

// CheckoutInput carries the delivery details captured at checkout.
type CheckoutInput struct {
	RecipientName   string
	Phone           string
	ShippingAddress string
	Note            *string
}

func (in CheckoutInput) normalize() (CheckoutInput, error) {
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	if in.Note != nil {
		note := strings.TrimSpace(*in.Note)
		if note == "" {
			in.Note = nil
		} else {
			in.Note = &note
		}
	}

	missing := []string{}
	if in.RecipientName == "" {
		missing = append(missing, "recipient_name")
	}
	if in.Phone == "" {
		missing = append(missing, "phone")
	}
	if in.ShippingAddress == "" {
		missing = append(missing, "shipping_address")
	}
	if len(missing) > 0 {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "shipping details incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return in, nil
}

// OrderItemDTO is one purchased line.
type OrderItemDTO struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Price          int64     `json:"price"`
	OriginalPrice  int64     `json:"original_price"`
	SalePercentage *float64  `json:"sale_percentage,omitempty"`
	Quantity       int       `json:"quantity"`
	LineTotal      int64     `json:"line_total"`
}

// PaymentDTO is the bank-transfer instruction shown to the buyer.
type PaymentDTO struct {
	ID                uuid.UUID           `json:"id"`
	Method            string              `json:"method"`
	Status            enums.PaymentStatus `json:"status"`
	Amount            int64               `json:"amount"`
	ReferenceCode     string              `json:"reference_code"`
	BankAccountName   string              `json:"bank_account_name,omitempty"`
	BankAccountNumber string              `json:"bank_account_number,omitempty"`
	ExpiresAt         time.Time           `json:"expires_at"`
	PaidAt            *time.Time          `json:"paid_at,omitempty"`
}

// ShipmentSummary is the shipment state embedded in order detail.
type ShipmentSummary struct {
	Courier        string               `json:"courier"`
	TrackingNumber string               `json:"tracking_number"`
	Status         enums.ShipmentStatus `json:"status"`
	ShippedAt      time.Time            `json:"shipped_at"`
	DeliveredAt    *time.Time           `json:"delivered_at,omitempty"`
}

// OrderDTO is the order detail response.
type OrderDTO struct {
	ID              uuid.UUID         `json:"id"`
	Status          enums.OrderStatus `json:"status"`
	TotalItems      int               `json:"total_items"`
	TotalAmount     int64             `json:"total_amount"`
	RecipientName   string            `json:"recipient_name"`
	Phone           string            `json:"phone"`
	ShippingAddress string            `json:"shipping_address"`
	Note            *string           `json:"note,omitempty"`
	Items           []OrderItemDTO    `json:"items"`
	Payment         *PaymentDTO       `json:"payment,omitempty"`
	Shipment        *ShipmentSummary  `json:"shipment,omitempty"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	ShippedAt       *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time        `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	ExpiredAt       *time.Time        `json:"expired_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// OrderSummary is one row of the order history.
type OrderSummary struct {
	ID          uuid.UUID         `json:"id"`
	Status      enums.OrderStatus `json:"status"`
	TotalItems  int               `json:"total_items"`
	TotalAmount int64             `json:"total_amount"`
	CreatedAt   time.Time         `json:"created_at"`
}

// OrderList wraps a page of summaries plus the next cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toOrderDTO(order *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:              order.ID,
		Status:          order.Status,
		TotalItems:      order.TotalItems,
		TotalAmount:     order.TotalAmount,
		RecipientName:   order.RecipientName,
		Phone:           order.Phone,
		ShippingAddress: order.ShippingAddress,
		Note:            order.Note,
		Items:           make([]OrderItemDTO, 0, len(order.Items)),
		PaidAt:          order.PaidAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		ExpiredAt:       order.ExpiredAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Price:          item.Price,
			OriginalPrice:  item.OriginalPrice,
			SalePercentage: item.SalePercentage,
			Quantity:       item.Quantity,
			LineTotal:      item.LineTotal,
		})
	}
	return dto
}

func toShipmentSummary(shipment *models.Shipment) *ShipmentSummary {
	if shipment == nil {
		return nil
	}
	return &ShipmentSummary{
		Courier:        shipment.Courier,
		TrackingNumber: shipment.TrackingNumber,
		Status:         shipment.Status,
		ShippedAt:      shipment.ShippedAt,
		DeliveredAt:    shipment.DeliveredAt,
	}
}
