package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dermashop/dermashop-backend/internal/cart"
	"github.com/dermashop/dermashop-backend/internal/notifications"
	"github.com/dermashop/dermashop-backend/internal/products"
	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/dermashop/dermashop-backend/pkg/db"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubCart struct {
	selected  []cart.CartItem
	selectErr error
	removed   int
	removeErr error
}

func (s *stubCart) CheckoutSelected(ctx context.Context, _ uuid.UUID, place cart.PlaceFunc) (*cart.Cart, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	if err := place(ctx, s.selected); err != nil {
		return nil, err
	}
	s.removed++
	if s.removeErr != nil {
		return nil, errors.Join(cart.ErrCartNotUpdated, s.removeErr)
	}
	return &cart.Cart{}, nil
}

type recordingNotifier struct {
	inputs []notifications.NotifyInput
}

func (r *recordingNotifier) Notify(_ context.Context, input notifications.NotifyInput) error {
	r.inputs = append(r.inputs, input)
	return nil
}

type ordersFixture struct {
	conn     *gorm.DB
	svc      *service
	cart     *stubCart
	notifier *recordingNotifier
	userID   uuid.UUID
	now      time.Time
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()
	conn := setupOrdersTestDB(t)
	f := &ordersFixture{
		conn:     conn,
		cart:     &stubCart{},
		notifier: &recordingNotifier{},
		userID:   uuid.New(),
		now:      time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        db.NewFromGorm(conn),
		Cart:      f.cart,
		Inventory: products.NewInventory(conn),
		Notifier:  f.notifier,
		Payments:  config.PaymentsConfig{TransferWindow: 24 * time.Hour, BankAccountName: "PT Dermashop", BankAccountNumber: "123"},
	})
	require.NoError(t, err)
	f.svc = svc.(*service)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func checkoutInput() CheckoutInput {
	return CheckoutInput{RecipientName: "Sari", Phone: "0812", ShippingAddress: "Jl. Melati 1"}
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCheckoutCreatesOrderAndPayment(t *testing.T) {
	f := newOrdersFixture(t)
	product := seedReservedProduct(t, f.conn, 1000, 5, 2)
	f.cart.selected = []cart.CartItem{{ProductID: product.ID, ProductName: product.Name, Price: 900, OriginalPrice: 1000, Quantity: 2, Selected: true}}

	order, err := f.svc.Checkout(context.Background(), f.userID, checkoutInput())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, int64(1800), order.TotalAmount)
	assert.Equal(t, 2, order.TotalItems)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(1800), order.Items[0].LineTotal)

	require.NotNil(t, order.Payment)
	assert.Equal(t, int64(1800), order.Payment.Amount)
	assert.Equal(t, enums.PaymentStatusPending, order.Payment.Status)
	assert.Equal(t, f.now.Add(24*time.Hour), order.Payment.ExpiresAt)
	assert.Len(t, order.Payment.ReferenceCode, 14)
	assert.Equal(t, "123", order.Payment.BankAccountNumber)

	assert.Equal(t, 1, f.cart.removed)
	assert.Equal(t, 2, inventoryOf(t, f.conn, product.ID).ReservedQty, "reservation moves to the order")
	require.Len(t, f.notifier.inputs, 1)
	assert.Equal(t, enums.NotificationTypeOrderUpdate, f.notifier.inputs[0].Type)
}

func TestCheckoutFailures(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, f.userID, CheckoutInput{RecipientName: "Sari"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, map[string]any{"missing": []string{"phone", "shipping_address"}}, pkgerrors.As(err).Details())

	_, err = f.svc.Checkout(ctx, f.userID, checkoutInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	f.cart.selectErr = errors.New("redis down")
	_, err = f.svc.Checkout(ctx, f.userID, checkoutInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = f.svc.Checkout(ctx, uuid.Nil, checkoutInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	assert.Zero(t, f.cart.removed)
}

func TestCheckoutSurvivesCartCleanupFailure(t *testing.T) {
	f := newOrdersFixture(t)
	product := seedReservedProduct(t, f.conn, 500, 0, 1)
	f.cart.selected = []cart.CartItem{{ProductID: product.ID, Price: 500, Quantity: 1, Selected: true}}
	f.cart.removeErr = errors.New("redis down")

	order, err := f.svc.Checkout(context.Background(), f.userID, checkoutInput())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, order.ID)
}

func TestGetLoadsDetailAndChecksOwner(t *testing.T) {
	f := newOrdersFixture(t)
	product := seedReservedProduct(t, f.conn, 1000, 0, 1)
	f.cart.selected = []cart.CartItem{{ProductID: product.ID, Price: 1000, Quantity: 1, Selected: true}}
	created, err := f.svc.Checkout(context.Background(), f.userID, checkoutInput())
	require.NoError(t, err)

	require.NoError(t, f.conn.Create(&models.Shipment{
		OrderID:        created.ID,
		Courier:        "JNE",
		TrackingNumber: "JNE001",
		Status:         enums.ShipmentStatusInTransit,
		ShippedAt:      f.now,
	}).Error)

	got, err := f.svc.Get(context.Background(), f.userID, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Payment)
	assert.Equal(t, created.Payment.ReferenceCode, got.Payment.ReferenceCode)
	require.NotNil(t, got.Shipment)
	assert.Equal(t, "JNE001", got.Shipment.TrackingNumber)

	_, err = f.svc.Get(context.Background(), uuid.New(), created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Get(context.Background(), f.userID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancelReleasesReservations(t *testing.T) {
	f := newOrdersFixture(t)
	product := seedReservedProduct(t, f.conn, 1000, 3, 2)
	f.cart.selected = []cart.CartItem{{ProductID: product.ID, Price: 1000, Quantity: 2, Selected: true}}
	created, err := f.svc.Checkout(context.Background(), f.userID, checkoutInput())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), uuid.New(), created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	cancelled, err := f.svc.Cancel(context.Background(), f.userID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, enums.PaymentStatusCancelled, cancelled.Payment.Status)
	require.NotNil(t, cancelled.CancelledAt)

	inv := inventoryOf(t, f.conn, product.ID)
	assert.Equal(t, 5, inv.AvailableQty)
	assert.Zero(t, inv.ReservedQty)

	_, err = f.svc.Cancel(context.Background(), f.userID, created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestExpireIsIdempotent(t *testing.T) {
	f := newOrdersFixture(t)
	product := seedReservedProduct(t, f.conn, 1000, 0, 1)
	f.cart.selected = []cart.CartItem{{ProductID: product.ID, Price: 1000, Quantity: 1, Selected: true}}
	created, err := f.svc.Checkout(context.Background(), f.userID, checkoutInput())
	require.NoError(t, err)

	expired, err := f.svc.Expire(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	expired, err = f.svc.Expire(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	got, err := f.svc.Get(context.Background(), f.userID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusExpired, got.Status)
	assert.Equal(t, enums.PaymentStatusExpired, got.Payment.Status)
	assert.Equal(t, 1, inventoryOf(t, f.conn, product.ID).AvailableQty)
}

func TestListPaginates(t *testing.T) {
	f := newOrdersFixture(t)
	product := seedReservedProduct(t, f.conn, 100, 0, 3)
	for i := 0; i < 3; i++ {
		f.now = f.now.Add(time.Minute)
		f.cart.selected = []cart.CartItem{{ProductID: product.ID, Price: 100, Quantity: 1, Selected: true}}
		_, err := f.svc.Checkout(context.Background(), f.userID, checkoutInput())
		require.NoError(t, err)
	}

	page, err := f.svc.List(context.Background(), f.userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 2)
	assert.NotEmpty(t, page.NextCursor)

	_, err = f.svc.List(context.Background(), f.userID, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
