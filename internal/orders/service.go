package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/internal/cart"
	"github.com/dermashop/dermashop-backend/internal/notifications"
	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/dermashop/dermashop-backend/pkg/db"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/dermashop/dermashop-backend/pkg/pagination"
	"github.com/dermashop/dermashop-backend/pkg/pricing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const referenceConstraint = "payments_reference_code_key"

// Service defines the buyer-facing order operations plus the system expiry hook.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*OrderDTO, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// ServiceParams wires the order service. Notifier and Logger are optional.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Cart      CartCheckout
	Inventory InventoryReleaser
	Notifier  Notifier
	Logger    *logger.Logger
	Payments  config.PaymentsConfig
}

type service struct {
	repo      Repository
	tx        txRunner
	cart      CartCheckout
	inventory InventoryReleaser
	notifier  Notifier
	logg      *logger.Logger
	payments  config.PaymentsConfig
	now       func() time.Time
	reference func() string
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if params.Payments.TransferWindow <= 0 {
		return nil, fmt.Errorf("payment transfer window must be positive")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		cart:      params.Cart,
		inventory: params.Inventory,
		notifier:  params.Notifier,
		logg:      params.Logger,
		payments:  params.Payments,
		now:       time.Now,
		reference: newReferenceCode,
	}, nil
}

// Checkout turns the selected cart lines into an order awaiting bank transfer.
// The cart stays locked while the order is written, so the reservations made
// while shopping move to the order unchanged.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	input, err := input.normalize()
	if err != nil {
		return nil, err
	}

	var (
		order   *models.Order
		payment *models.Payment
	)
	_, err = s.cart.CheckoutSelected(ctx, userID, func(ctx context.Context, selected []cart.CartItem) error {
		if len(selected) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "no cart items selected for checkout")
		}
		o, p := s.buildOrder(userID, input, selected)
		if err := s.placeOrder(ctx, o, p); err != nil {
			return err
		}
		order, payment = o, p
		return nil
	})
	switch {
	case err == nil:
	case order != nil && errors.Is(err, cart.ErrCartNotUpdated):
		s.warn(ctx, "orders.checkout.cart_cleanup_failed", err, map[string]any{"order_id": order.ID.String()})
	default:
		return nil, pkgerrors.Passthrough(err, pkgerrors.CodeDependency, "checkout cart")
	}

	s.notify(ctx, notifications.NotifyInput{
		UserID:  userID,
		Type:    enums.NotificationTypeOrderUpdate,
		Title:   "Order placed",
		Message: fmt.Sprintf("Transfer %d with reference %s before %s to confirm your order.", payment.Amount, payment.ReferenceCode, payment.ExpiresAt.Format(time.RFC822)),
		Link:    orderLink(order.ID),
	})

	dto := toOrderDTO(order)
	dto.Payment = s.toPaymentDTO(payment)
	return dto, nil
}

// buildOrder prices the order from the cart snapshot taken under the cart lock.
func (s *service) buildOrder(userID uuid.UUID, input CheckoutInput, selected []cart.CartItem) (*models.Order, *models.Payment) {
	order := &models.Order{
		UserID:          userID,
		Status:          enums.OrderStatusPendingPayment,
		RecipientName:   input.RecipientName,
		Phone:           input.Phone,
		ShippingAddress: input.ShippingAddress,
		Note:            input.Note,
		Items:           make([]models.OrderItem, 0, len(selected)),
	}
	for _, line := range selected {
		lineTotal := pricing.LineTotal(line.Price, line.Quantity)
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Price:          line.Price,
			OriginalPrice:  line.OriginalPrice,
			SalePercentage: line.SalePercentage,
			Quantity:       line.Quantity,
			LineTotal:      lineTotal,
		})
		order.TotalItems += line.Quantity
		order.TotalAmount += lineTotal
	}
	payment := &models.Payment{
		UserID:        userID,
		Method:        models.PaymentMethodBankTransfer,
		Status:        enums.PaymentStatusPending,
		Amount:        order.TotalAmount,
		ReferenceCode: s.reference(),
		ExpiresAt:     s.now().UTC().Add(s.payments.TransferWindow),
	}
	return order, payment
}

// placeOrder writes the order and its pending payment in one transaction.
func (s *service) placeOrder(ctx context.Context, order *models.Order, payment *models.Payment) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		payment.OrderID = order.ID
		if err := repo.CreatePayment(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, referenceConstraint) || db.IsUniqueViolation(err, "reference_code") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment reference collision, retry checkout")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
		return nil
	})
}

// Get loads the order, its payment and its shipment concurrently.
func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	var (
		order    *models.Order
		payment  *models.Payment
		shipment *models.Shipment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		order, err = s.repo.FindOrder(gctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		payment, err = s.repo.FindPaymentByOrder(gctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		shipment, err = s.repo.FindShipmentByOrder(gctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}

	dto := toOrderDTO(order)
	dto.Payment = s.toPaymentDTO(payment)
	dto.Shipment = toShipmentSummary(shipment)
	return dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := pagination.Paginate(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	list := &OrderList{Orders: make([]OrderSummary, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, o := range page.Items {
		list.Orders = append(list.Orders, OrderSummary{
			ID:          o.ID,
			Status:      o.Status,
			TotalItems:  o.TotalItems,
			TotalAmount: o.TotalAmount,
			CreatedAt:   o.CreatedAt,
		})
	}
	return list, nil
}

// Cancel closes an unpaid order on the buyer's request and returns its stock.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.close(ctx, orderID, &userID, enums.OrderStatusCancelled, enums.PaymentStatusCancelled)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notifications.NotifyInput{
		UserID:  userID,
		Type:    enums.NotificationTypeOrderUpdate,
		Title:   "Order cancelled",
		Message: "Your order was cancelled and the reserved items were returned to stock.",
		Link:    orderLink(order.ID),
	})
	return s.Get(ctx, userID, orderID)
}

// Expire closes an order whose transfer window lapsed. It reports false when
// the payment was no longer pending, so repeated runs are harmless.
func (s *service) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, err := s.close(ctx, orderID, nil, enums.OrderStatusExpired, enums.PaymentStatusExpired)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return false, nil
		}
		return false, err
	}
	s.notify(ctx, notifications.NotifyInput{
		UserID:  order.UserID,
		Type:    enums.NotificationTypeOrderUpdate,
		Title:   "Order expired",
		Message: "We did not receive your transfer in time, so the order was closed.",
		Link:    orderLink(order.ID),
	})
	return true, nil
}

// close moves a pending_payment order and its payment to a terminal state and
// releases every line's reservation in the same transaction.
func (s *service) close(ctx context.Context, orderID uuid.UUID, actor *uuid.UUID, orderTo enums.OrderStatus, paymentTo enums.PaymentStatus) (*models.Order, error) {
	var closed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if actor != nil && order.UserID != *actor {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return statusConflict(order.Status)
		}

		ok, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, orderTo, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return statusConflict(order.Status)
		}
		if _, err := repo.TransitionPayment(ctx, order.ID, enums.PaymentStatusPending, paymentTo); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		for _, item := range order.Items {
			if err := s.inventory.ReleaseTx(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Passthrough(err, pkgerrors.CodeDependency, "release inventory")
			}
		}
		order.Status = orderTo
		closed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *service) toPaymentDTO(payment *models.Payment) *PaymentDTO {
	if payment == nil {
		return nil
	}
	return &PaymentDTO{
		ID:                payment.ID,
		Method:            payment.Method,
		Status:            payment.Status,
		Amount:            payment.Amount,
		ReferenceCode:     payment.ReferenceCode,
		BankAccountName:   s.payments.BankAccountName,
		BankAccountNumber: s.payments.BankAccountNumber,
		ExpiresAt:         payment.ExpiresAt,
		PaidAt:            payment.PaidAt,
	}
}

func (s *service) notify(ctx context.Context, input notifications.NotifyInput) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, input); err != nil {
		s.warn(ctx, "orders.notify_failed", err, map[string]any{"user_id": input.UserID.String()})
	}
}

func (s *service) warn(ctx context.Context, msg string, err error, fields map[string]any) {
	if s.logg == nil {
		return
	}
	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func statusConflict(current enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment").
		WithDetails(map[string]any{"status": current})
}

func orderLink(orderID uuid.UUID) *string {
	link := "/orders/" + orderID.String()
	return &link
}

// newReferenceCode returns the transfer reference the buyer types into the
// bank memo: "DS" plus twelve upper-case hex characters.
func newReferenceCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "DS" + strings.ToUpper(raw[:12])
}
