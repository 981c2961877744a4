package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dermashop/dermashop-backend/internal/products"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/dermashop/dermashop-backend/pkg/pricing"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// ErrCartNotUpdated marks a checkout whose order was placed but whose cart
// still lists the ordered lines.
var ErrCartNotUpdated = errors.New("cart not updated after checkout")

// DefaultTTL is the retention window applied on every cart write.
const DefaultTTL = 24 * time.Hour

// CatalogReader resolves product pricing at the time of addition.
type CatalogReader interface {
	FindOne(ctx context.Context, productID uuid.UUID) (*products.CatalogEntry, error)
}

// InventoryReserver holds and returns stock on behalf of cart lines.
type InventoryReserver interface {
	Reserve(ctx context.Context, productID uuid.UUID, qty int) (products.ReservationResult, error)
	Release(ctx context.Context, productID uuid.UUID, qty int) error
}

type cartMetrics interface {
	ObserveOperation(operation string, err error)
	ObserveInventoryCall(call string, ok bool)
	ObserveLockWait(d time.Duration)
}

// Service exposes the cart operations.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
	AddToCart(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Cart, error)
	UpdateCartItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Cart, error)
	RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) (*Cart, error)
	ToggleSelectItem(ctx context.Context, userID, productID uuid.UUID, selected bool) (*Cart, error)
	ToggleSelectAll(ctx context.Context, userID uuid.UUID, selected bool) (*Cart, error)
	GetSelectedItems(ctx context.Context, userID uuid.UUID) ([]CartItem, error)
	RemoveSelectedItems(ctx context.Context, userID uuid.UUID) (*Cart, error)
	CheckoutSelected(ctx context.Context, userID uuid.UUID, place PlaceFunc) (*Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
	RemoveItemsByProductIDs(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) (*Cart, error)
}

// PlaceFunc turns the selected lines into an order. It runs while the cart is
// locked; a nil return hands the lines' reservations to the order.
type PlaceFunc func(ctx context.Context, selected []CartItem) error

// ServiceParams wires the cart service. Locker is optional: without it
// concurrent mutations of one cart can overwrite each other.
type ServiceParams struct {
	Store     Store
	Catalog   CatalogReader
	Inventory InventoryReserver
	Locker    Locker
	Metrics   cartMetrics
	Logger    *logger.Logger
	TTL       time.Duration
}

type service struct {
	store     Store
	catalog   CatalogReader
	inventory InventoryReserver
	locker    Locker
	metrics   cartMetrics
	logg      *logger.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory reserver required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &service{
		store:     params.Store,
		catalog:   params.Catalog,
		inventory: params.Inventory,
		locker:    params.Locker,
		metrics:   params.Metrics,
		logg:      params.Logger,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// GetCart returns the stored cart or a fresh empty one. The empty cart is not persisted.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (cart *Cart, err error) {
	defer s.track("get_cart", &err)
	return s.load(ctx, userID)
}

// AddToCart reserves quantity more units and merges them into the product's line,
// re-pricing the line from the current catalog entry.
func (s *service) AddToCart(ctx context.Context, userID, productID uuid.UUID, quantity int) (cart *Cart, err error) {
	defer s.track("add_to_cart", &err)
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	entry, err := s.catalog.FindOne(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Passthrough(err, pkgerrors.CodeDependency, "load product")
	}

	return s.mutate(ctx, userID, func(c *Cart, now time.Time) error {
		if err := s.reserve(ctx, productID, quantity); err != nil {
			return err
		}

		price := pricing.EffectivePrice(entry.SellingPrice, entry.SalePercentage)
		if idx := c.indexOf(productID); idx >= 0 {
			line := &c.Items[idx]
			line.Quantity += quantity
			line.ProductName = entry.ProductName
			line.Price = price
			line.OriginalPrice = entry.SellingPrice
			line.SalePercentage = entry.SalePercentage
			return nil
		}
		c.Items = append(c.Items, CartItem{
			ProductID:      productID,
			ProductName:    entry.ProductName,
			Price:          price,
			OriginalPrice:  entry.SellingPrice,
			SalePercentage: entry.SalePercentage,
			Quantity:       quantity,
			Selected:       true,
			AddedAt:        now,
		})
		return nil
	}, reservationOnFailure(productID, quantity))
}

// UpdateCartItem sets the line quantity, reserving or releasing the difference.
func (s *service) UpdateCartItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (cart *Cart, err error) {
	defer s.track("update_cart_item", &err)
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	var reserved int
	return s.mutate(ctx, userID, func(c *Cart, _ time.Time) error {
		idx := c.indexOf(productID)
		if idx < 0 {
			return itemNotFound(productID)
		}
		line := &c.Items[idx]
		diff := quantity - line.Quantity
		switch {
		case diff > 0:
			if err := s.reserve(ctx, productID, diff); err != nil {
				return err
			}
			reserved = diff
		case diff < 0:
			if err := s.release(ctx, productID, -diff); err != nil {
				return err
			}
		}
		line.Quantity = quantity
		return nil
	}, func() (uuid.UUID, int) { return productID, reserved })
}

// RemoveFromCart releases the line's full reservation and drops it.
func (s *service) RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) (cart *Cart, err error) {
	defer s.track("remove_from_cart", &err)
	return s.mutate(ctx, userID, func(c *Cart, _ time.Time) error {
		idx := c.indexOf(productID)
		if idx < 0 {
			return itemNotFound(productID)
		}
		if err := s.release(ctx, productID, c.Items[idx].Quantity); err != nil {
			return err
		}
		c.retain(func(item CartItem) bool { return item.ProductID != productID })
		return nil
	}, nil)
}

// ToggleSelectItem flips checkout inclusion for one line. No inventory side effect.
func (s *service) ToggleSelectItem(ctx context.Context, userID, productID uuid.UUID, selected bool) (cart *Cart, err error) {
	defer s.track("toggle_select_item", &err)
	return s.mutate(ctx, userID, func(c *Cart, _ time.Time) error {
		idx := c.indexOf(productID)
		if idx < 0 {
			return itemNotFound(productID)
		}
		c.Items[idx].Selected = selected
		return nil
	}, nil)
}

// ToggleSelectAll sets the selected flag on every line. On an empty cart it is a no-op.
func (s *service) ToggleSelectAll(ctx context.Context, userID uuid.UUID, selected bool) (cart *Cart, err error) {
	defer s.track("toggle_select_all", &err)
	return s.mutate(ctx, userID, func(c *Cart, _ time.Time) error {
		for i := range c.Items {
			c.Items[i].Selected = selected
		}
		return nil
	}, nil)
}

func (s *service) GetSelectedItems(ctx context.Context, userID uuid.UUID) (items []CartItem, err error) {
	defer s.track("get_selected_items", &err)
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return SelectedItems(c), nil
}

// RemoveSelectedItems drops every selected line after checkout. Reservations
// are not released: they now back the order created from those lines.
func (s *service) RemoveSelectedItems(ctx context.Context, userID uuid.UUID) (cart *Cart, err error) {
	defer s.track("remove_selected_items", &err)
	return s.mutate(ctx, userID, func(c *Cart, _ time.Time) error {
		c.retain(func(item CartItem) bool { return !item.Selected })
		return nil
	}, nil)
}

// CheckoutSelected reads the selected lines, passes them to place and drops
// them from the cart in one locked cycle, so the order is built from exactly
// the lines that leave the cart. When place fails the cart is left untouched.
// ErrCartNotUpdated is returned alongside the error when place succeeded but
// the cart could not be written.
func (s *service) CheckoutSelected(ctx context.Context, userID uuid.UUID, place PlaceFunc) (cart *Cart, err error) {
	defer s.track("checkout_selected", &err)
	if place == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout callback required")
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := place(ctx, SelectedItems(c)); err != nil {
		return nil, err
	}

	c.retain(func(item CartItem) bool { return !item.Selected })
	saved, err := s.persist(ctx, userID, c, s.now().UTC())
	if err != nil {
		s.warn(ctx, "cart.checkout.persist_failed", map[string]any{"user_id": userID.String(), "error": err.Error()})
		return nil, multierr.Append(ErrCartNotUpdated, err)
	}
	return saved, nil
}

// ClearCart releases every line's reservation and deletes the cart. Releases
// are best effort: a failure does not stop the remaining releases or the
// delete, and all failures are reported together.
func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) (err error) {
	defer s.track("clear_cart", &err)

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	var releaseErr error
	for _, item := range c.Items {
		if err := s.release(ctx, item.ProductID, item.Quantity); err != nil {
			releaseErr = multierr.Append(releaseErr, fmt.Errorf("product %s: %w", item.ProductID, err))
		}
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, multierr.Append(releaseErr, err), "delete cart")
	}
	if releaseErr != nil {
		failed := len(multierr.Errors(releaseErr))
		s.warn(ctx, "cart.clear.release_failed", map[string]any{"user_id": userID.String(), "failed_releases": failed})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, releaseErr, "release cart reservations").
			WithDetails(map[string]any{"failed_releases": failed})
	}
	return nil
}

// RemoveItemsByProductIDs drops the listed products without releasing their
// reservations. It fails with NOT_FOUND when the cart is already empty.
func (s *service) RemoveItemsByProductIDs(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) (cart *Cart, err error) {
	defer s.track("remove_items_by_product_ids", &err)
	drop := make(map[uuid.UUID]struct{}, len(productIDs))
	for _, id := range productIDs {
		drop[id] = struct{}{}
	}
	return s.mutate(ctx, userID, func(c *Cart, _ time.Time) error {
		if c.IsEmpty() {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
		}
		c.retain(func(item CartItem) bool {
			_, remove := drop[item.ProductID]
			return !remove
		})
		return nil
	}, nil)
}

// mutate runs one locked read-modify-write cycle. onPersistFailure names a
// reservation the change made so it can be logged if the write is lost.
func (s *service) mutate(ctx context.Context, userID uuid.UUID, change func(*Cart, time.Time) error, onPersistFailure func() (uuid.UUID, int)) (*Cart, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := change(c, now); err != nil {
		return nil, err
	}

	saved, err := s.persist(ctx, userID, c, now)
	if err != nil && onPersistFailure != nil {
		if productID, qty := onPersistFailure(); qty > 0 {
			s.warn(ctx, "cart.persist_failed.reservation_orphaned", map[string]any{
				"user_id":    userID.String(),
				"product_id": productID.String(),
				"quantity":   qty,
			})
		}
	}
	return saved, err
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	c, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if c == nil {
		return emptyCart(s.now().UTC()), nil
	}
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	return c, nil
}

// persist recomputes totals and writes the cart with a fresh TTL, or deletes
// the record when no lines remain.
func (s *service) persist(ctx context.Context, userID uuid.UUID, c *Cart, now time.Time) (*Cart, error) {
	c.recalculate(now)
	if c.IsEmpty() {
		if err := s.store.Delete(ctx, userID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
		}
		return emptyCart(now), nil
	}
	if err := s.store.Save(ctx, userID, c, s.ttl); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return c, nil
}

func (s *service) reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	res, err := s.inventory.Reserve(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Passthrough(err, pkgerrors.CodeDependency, "reserve stock")
	}
	s.observeInventory("reserve", res.Success)
	if !res.Success {
		msg := fmt.Sprintf("insufficient stock: only %d units available", res.Available)
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, msg).WithDetails(map[string]any{
			"product_id": productID,
			"requested":  qty,
			"available":  res.Available,
			"reason":     res.Reason,
		})
	}
	return nil
}

func (s *service) release(ctx context.Context, productID uuid.UUID, qty int) error {
	err := s.inventory.Release(ctx, productID, qty)
	s.observeInventory("release", err == nil)
	if err != nil {
		return pkgerrors.Passthrough(err, pkgerrors.CodeDependency, "release stock")
	}
	return nil
}

func (s *service) lock(ctx context.Context, userID uuid.UUID) (func(), error) {
	if s.locker == nil || userID == uuid.Nil {
		return func() {}, nil
	}
	started := time.Now()
	release, err := s.locker.Lock(ctx, userID)
	if s.metrics != nil {
		s.metrics.ObserveLockWait(time.Since(started))
	}
	if err != nil {
		return nil, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.warn(ctx, "cart.unlock_failed", map[string]any{"user_id": userID.String(), "error": err.Error()})
		}
	}, nil
}

func (s *service) track(operation string, err *error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, *err)
	}
}

func (s *service) observeInventory(call string, ok bool) {
	if s.metrics != nil {
		s.metrics.ObserveInventoryCall(call, ok)
	}
}

func (s *service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func itemNotFound(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found").
		WithDetails(map[string]any{"product_id": productID})
}

func reservationOnFailure(productID uuid.UUID, qty int) func() (uuid.UUID, int) {
	return func() (uuid.UUID, int) { return productID, qty }
}
