package orders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dermashop/dermashop-backend/api/middleware"
	internalorders "github.com/dermashop/dermashop-backend/internal/orders"
	"github.com/dermashop/dermashop-backend/internal/shipments"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/dermashop/dermashop-backend/pkg/pagination"
)

type stubOrderService struct {
	internalorders.Service
	checkoutFn func(ctx context.Context, userID uuid.UUID, input internalorders.CheckoutInput) (*internalorders.OrderDTO, error)
	getFn      func(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error)
	listFn     func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	cancelFn   func(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error)
}

func (s *stubOrderService) Checkout(ctx context.Context, userID uuid.UUID, input internalorders.CheckoutInput) (*internalorders.OrderDTO, error) {
	return s.checkoutFn(ctx, userID, input)
}

func (s *stubOrderService) Get(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.getFn(ctx, userID, orderID)
}

func (s *stubOrderService) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return s.listFn(ctx, userID, params)
}

func (s *stubOrderService) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.cancelFn(ctx, userID, orderID)
}

type stubShipmentService struct {
	shipments.Service
	trackingFn func(ctx context.Context, userID, orderID uuid.UUID) (*shipments.TrackingDTO, error)
}

func (s *stubShipmentService) Tracking(ctx context.Context, userID, orderID uuid.UUID) (*shipments.TrackingDTO, error) {
	return s.trackingFn(ctx, userID, orderID)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withOrderID(req *http.Request, orderID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCheckoutCreatesOrder(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrderService{
		checkoutFn: func(ctx context.Context, uid uuid.UUID, input internalorders.CheckoutInput) (*internalorders.OrderDTO, error) {
			if uid != userID {
				t.Fatalf("unexpected user %s", uid)
			}
			if input.RecipientName != "Rina" || input.ShippingAddress != "Jl. Sudirman 1" {
				t.Fatalf("unexpected input %+v", input)
			}
			return &internalorders.OrderDTO{ID: uuid.New(), Status: enums.OrderStatusPendingPayment, TotalAmount: 150000}, nil
		},
	}

	body := `{"recipient_name":"Rina","phone":"0812","shipping_address":"Jl. Sudirman 1"}`
	resp := httptest.NewRecorder()
	Checkout(svc, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/orders", body, userID))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Status != enums.OrderStatusPendingPayment {
		t.Fatalf("unexpected status %s", envelope.Data.Status)
	}
}

func TestCheckoutValidatesBody(t *testing.T) {
	resp := httptest.NewRecorder()
	Checkout(&stubOrderService{}, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/orders", `{"phone":"0812"}`, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutEmptySelection(t *testing.T) {
	svc := &stubOrderService{
		checkoutFn: func(ctx context.Context, uid uuid.UUID, input internalorders.CheckoutInput) (*internalorders.OrderDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items selected")
		},
	}
	body := `{"recipient_name":"Rina","phone":"0812","shipping_address":"Jl. Sudirman 1"}`
	resp := httptest.NewRecorder()
	Checkout(svc, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/orders", body, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListPassesPagination(t *testing.T) {
	svc := &stubOrderService{
		listFn: func(ctx context.Context, uid uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
			if params.Limit != 5 || params.Cursor != "abc" {
				t.Fatalf("unexpected params %+v", params)
			}
			return &internalorders.OrderList{Orders: []internalorders.OrderSummary{}}, nil
		},
	}
	resp := httptest.NewRecorder()
	List(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/orders?limit=5&cursor=abc", "", uuid.New()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestDetailForbidden(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrderService{
		getFn: func(ctx context.Context, uid, oid uuid.UUID) (*internalorders.OrderDTO, error) {
			if oid != orderID {
				t.Fatalf("unexpected order %s", oid)
			}
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		},
	}
	req := withOrderID(authedRequest(http.MethodGet, "/", "", uuid.New()), orderID.String())
	resp := httptest.NewRecorder()
	Detail(svc, testLogger())(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestCancelStateConflict(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(ctx context.Context, uid, oid uuid.UUID) (*internalorders.OrderDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is paid")
		},
	}
	req := withOrderID(authedRequest(http.MethodPost, "/", "", uuid.New()), uuid.NewString())
	resp := httptest.NewRecorder()
	Cancel(svc, testLogger())(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestTrackingReturnsEvents(t *testing.T) {
	orderID := uuid.New()
	svc := &stubShipmentService{
		trackingFn: func(ctx context.Context, uid, oid uuid.UUID) (*shipments.TrackingDTO, error) {
			return &shipments.TrackingDTO{
				OrderID:        oid,
				Courier:        "JNE",
				TrackingNumber: "JNE123",
				Status:         enums.ShipmentStatusInTransit,
				Events:         []shipments.EventDTO{{Status: enums.ShipmentStatusInTransit, Description: "picked up"}},
			}, nil
		},
	}
	req := withOrderID(authedRequest(http.MethodGet, "/", "", uuid.New()), orderID.String())
	resp := httptest.NewRecorder()
	Tracking(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data shipments.TrackingDTO `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.OrderID != orderID || len(envelope.Data.Events) != 1 {
		t.Fatalf("unexpected tracking %+v", envelope.Data)
	}
}
