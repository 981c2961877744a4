package orders

import (
	"context"
	"time"

	"github.com/dermashop/dermashop-backend/internal/cart"
	"github.com/dermashop/dermashop-backend/internal/notifications"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	"github.com/dermashop/dermashop-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and the payment and
// shipment rows hanging off them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindShipmentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	TransitionPayment(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error)
	HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CartCheckout is the slice of the cart service checkout needs.
type CartCheckout interface {
	CheckoutSelected(ctx context.Context, userID uuid.UUID, place cart.PlaceFunc) (*cart.Cart, error)
}

// InventoryReleaser returns reserved stock inside the caller's transaction.
type InventoryReleaser interface {
	ReleaseTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) error
}
