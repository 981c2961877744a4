package orders

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dermashop/dermashop-backend/internal/cart"
	"github.com/dermashop/dermashop-backend/internal/products"
	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/dermashop/dermashop-backend/pkg/db"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memCartStore struct {
	mu    sync.Mutex
	carts map[uuid.UUID][]byte
}

func (s *memCartStore) Get(_ context.Context, userID uuid.UUID) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.carts[userID]
	if !ok {
		return nil, nil
	}
	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *memCartStore) Save(_ context.Context, userID uuid.UUID, c *cart.Cart, _ time.Duration) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = raw
	return nil
}

func (s *memCartStore) Delete(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

// waitLocker is an in-process cart lock that reports when a second caller
// has to wait.
type waitLocker struct {
	mu        sync.Mutex
	held      map[uuid.UUID]chan struct{}
	contended chan struct{}
}

func newWaitLocker() *waitLocker {
	return &waitLocker{held: map[uuid.UUID]chan struct{}{}, contended: make(chan struct{}, 1)}
}

func (l *waitLocker) Lock(ctx context.Context, userID uuid.UUID) (func(context.Context) error, error) {
	for {
		l.mu.Lock()
		busy, ok := l.held[userID]
		if !ok {
			done := make(chan struct{})
			l.held[userID] = done
			l.mu.Unlock()
			return func(context.Context) error {
				l.mu.Lock()
				delete(l.held, userID)
				l.mu.Unlock()
				close(done)
				return nil
			}, nil
		}
		l.mu.Unlock()
		select {
		case l.contended <- struct{}{}:
		default:
		}
		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// hookedTx runs before once ahead of the first transaction.
type hookedTx struct {
	inner  txRunner
	before func()
}

func (h *hookedTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if h.before != nil {
		before := h.before
		h.before = nil
		before()
	}
	return h.inner.WithTx(ctx, fn)
}

type liveCheckoutFixture struct {
	conn    *gorm.DB
	cart    cart.Service
	locker  *waitLocker
	tx      *hookedTx
	orders  Service
	userID  uuid.UUID
	product *models.Product
	other   *models.Product
}

func newLiveCheckoutFixture(t *testing.T) *liveCheckoutFixture {
	t.Helper()
	conn := setupOrdersTestDB(t)
	ctx := context.Background()

	repo := products.NewRepository(conn)
	product := &models.Product{Name: "Niacinamide Serum", SellingPrice: 1000, IsActive: true}
	require.NoError(t, repo.CreateWithInventory(ctx, product, 10))
	other := &models.Product{Name: "Gentle Cleanser", SellingPrice: 400, IsActive: true}
	require.NoError(t, repo.CreateWithInventory(ctx, other, 10))

	catalog, err := products.NewService(repo)
	require.NoError(t, err)
	locker := newWaitLocker()
	cartSvc, err := cart.NewService(cart.ServiceParams{
		Store:     &memCartStore{carts: map[uuid.UUID][]byte{}},
		Catalog:   catalog,
		Inventory: products.NewInventory(conn),
		Locker:    locker,
	})
	require.NoError(t, err)

	tx := &hookedTx{inner: db.NewFromGorm(conn)}
	orderSvc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        tx,
		Cart:      cartSvc,
		Inventory: products.NewInventory(conn),
		Payments:  config.PaymentsConfig{TransferWindow: time.Hour},
	})
	require.NoError(t, err)

	return &liveCheckoutFixture{
		conn:    conn,
		cart:    cartSvc,
		locker:  locker,
		tx:      tx,
		orders:  orderSvc,
		userID:  uuid.New(),
		product: product,
		other:   other,
	}
}

// assertReservationsBalanced checks that every reserved unit belongs to an
// open order line or a cart line.
func (f *liveCheckoutFixture) assertReservationsBalanced(t *testing.T, productID uuid.UUID) {
	t.Helper()
	var ordered int64
	require.NoError(t, f.conn.Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.product_id = ? AND orders.status = ?", productID, enums.OrderStatusPendingPayment).
		Select("COALESCE(SUM(order_items.quantity), 0)").
		Scan(&ordered).Error)

	c, err := f.cart.GetCart(context.Background(), f.userID)
	require.NoError(t, err)
	inCart := 0
	for _, item := range c.Items {
		if item.ProductID == productID {
			inCart += item.Quantity
		}
	}

	stock := inventoryOf(t, f.conn, productID)
	assert.Equal(t, int(ordered)+inCart, stock.ReservedQty, "reserved units must be held by an order or the cart")
	assert.Equal(t, 10, stock.OnHand())
}

func TestCheckoutWithLiveCartMovesOnlySelectedLines(t *testing.T) {
	f := newLiveCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.cart.AddToCart(ctx, f.userID, f.product.ID, 2)
	require.NoError(t, err)
	_, err = f.cart.AddToCart(ctx, f.userID, f.other.ID, 1)
	require.NoError(t, err)
	_, err = f.cart.ToggleSelectItem(ctx, f.userID, f.other.ID, false)
	require.NoError(t, err)

	order, err := f.orders.Checkout(ctx, f.userID, checkoutInput())
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)

	remaining, err := f.cart.GetCart(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, remaining.Items, 1)
	assert.Equal(t, f.other.ID, remaining.Items[0].ProductID)

	f.assertReservationsBalanced(t, f.product.ID)
	f.assertReservationsBalanced(t, f.other.ID)
}

func TestCheckoutWithLiveCartSerialisesConcurrentChanges(t *testing.T) {
	cases := []struct {
		name         string
		change       func(ctx context.Context, f *liveCheckoutFixture) error
		wantCode     pkgerrors.Code
		cartAfter    int
		reservedLeft int
	}{
		{
			name: "add during checkout lands in the emptied cart",
			change: func(ctx context.Context, f *liveCheckoutFixture) error {
				_, err := f.cart.AddToCart(ctx, f.userID, f.product.ID, 3)
				return err
			},
			cartAfter:    3,
			reservedLeft: 3,
		},
		{
			name: "lowering quantity during checkout cannot release ordered units",
			change: func(ctx context.Context, f *liveCheckoutFixture) error {
				_, err := f.cart.UpdateCartItem(ctx, f.userID, f.product.ID, 1)
				return err
			},
			wantCode:     pkgerrors.CodeNotFound,
			cartAfter:    0,
			reservedLeft: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLiveCheckoutFixture(t)
			ctx := context.Background()
			_, err := f.cart.AddToCart(ctx, f.userID, f.product.ID, 2)
			require.NoError(t, err)

			done := make(chan error, 1)
			f.tx.before = func() {
				go func() { done <- tc.change(ctx, f) }()
				select {
				case <-f.locker.contended:
				case <-time.After(2 * time.Second):
					t.Error("concurrent cart change never waited on the cart lock")
				}
			}

			order, err := f.orders.Checkout(ctx, f.userID, checkoutInput())
			require.NoError(t, err)
			require.Len(t, order.Items, 1)
			assert.Equal(t, 2, order.Items[0].Quantity)

			changeErr := <-done
			if tc.wantCode != "" {
				assert.True(t, pkgerrors.IsCode(changeErr, tc.wantCode), "got %v", changeErr)
			} else {
				require.NoError(t, changeErr)
			}

			c, err := f.cart.GetCart(ctx, f.userID)
			require.NoError(t, err)
			assert.Equal(t, tc.cartAfter, c.TotalItems)
			f.assertReservationsBalanced(t, f.product.ID)

			_, err = f.orders.Cancel(ctx, f.userID, order.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.reservedLeft, inventoryOf(t, f.conn, f.product.ID).ReservedQty)
			f.assertReservationsBalanced(t, f.product.ID)
		})
	}
}

func TestCheckoutWithLiveCartKeepsCartWhenOrderFails(t *testing.T) {
	f := newLiveCheckoutFixture(t)
	ctx := context.Background()
	_, err := f.cart.AddToCart(ctx, f.userID, f.product.ID, 2)
	require.NoError(t, err)

	require.NoError(t, f.conn.Migrator().DropTable(&models.Payment{}))

	_, err = f.orders.Checkout(ctx, f.userID, checkoutInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)

	c, err := f.cart.GetCart(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.TotalItems)
	f.assertReservationsBalanced(t, f.product.ID)
}
