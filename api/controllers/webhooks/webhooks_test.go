package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dermashop/dermashop-backend/internal/payments"
	"github.com/dermashop/dermashop-backend/internal/shipments"
	internalwebhooks "github.com/dermashop/dermashop-backend/internal/webhooks"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	pkgredis "github.com/dermashop/dermashop-backend/pkg/redis"
)

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.ErrNil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

type fakePaymentService struct {
	mu     sync.Mutex
	calls  int
	err    error
	events []payments.BankTransferEvent
}

func (f *fakePaymentService) Reconcile(_ context.Context, event payments.BankTransferEvent) (*payments.ReconcileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}
	return &payments.ReconcileResult{Status: payments.ResultPaid, PaymentID: uuid.New(), OrderID: uuid.New()}, nil
}

type fakeShipmentService struct {
	shipments.Service
	calls  int
	err    error
	events []shipments.CourierEvent
}

func (f *fakeShipmentService) HandleCourierEvent(_ context.Context, event shipments.CourierEvent) error {
	f.calls++
	f.events = append(f.events, event)
	return f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newGuard(t *testing.T, scope string) *internalwebhooks.IdempotencyGuard {
	t.Helper()
	guard, err := internalwebhooks.NewIdempotencyGuard(newInMemoryStore(), time.Hour, scope)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

func post(handler http.HandlerFunc, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	resp := httptest.NewRecorder()
	handler(resp, req)
	return resp
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

const bankEvent = `{"event_id":"evt-1","reference":"DS-ABC123","amount":150000,"paid_at":"2026-10-01T10:00:00Z","bank_transaction_id":"trx-9"}`

func TestBankTransferProcessesOnce(t *testing.T) {
	svc := &fakePaymentService{}
	handler := BankTransfer(svc, newGuard(t, "bank"), "", testLogger())

	first := post(handler, []byte(bankEvent), "")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", first.Code, first.Body.String())
	}
	second := post(handler, []byte(bankEvent), "")
	if second.Code != http.StatusOK {
		t.Fatalf("expected duplicate to be acknowledged, got %d", second.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one reconcile, got %d", svc.calls)
	}
	if svc.events[0].Reference != "DS-ABC123" || svc.events[0].Amount != 150000 {
		t.Fatalf("unexpected event %+v", svc.events[0])
	}
}

func TestBankTransferFailureAllowsRetry(t *testing.T) {
	svc := &fakePaymentService{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := BankTransfer(svc, newGuard(t, "bank"), "", testLogger())

	if resp := post(handler, []byte(bankEvent), ""); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	svc.err = nil
	if resp := post(handler, []byte(bankEvent), ""); resp.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", resp.Code)
	}
	if svc.calls != 2 {
		t.Fatalf("expected retry to reach the service, calls=%d", svc.calls)
	}
}

func TestBankTransferRejectsMissingEventID(t *testing.T) {
	svc := &fakePaymentService{}
	handler := BankTransfer(svc, newGuard(t, "bank"), "", testLogger())
	if resp := post(handler, []byte(`{"reference":"DS-1","amount":1}`), ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not run")
	}
}

func TestBankTransferSignature(t *testing.T) {
	svc := &fakePaymentService{}
	handler := BankTransfer(svc, newGuard(t, "bank"), "shh", testLogger())

	if resp := post(handler, []byte(bankEvent), ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", resp.Code)
	}
	if resp := post(handler, []byte(bankEvent), sign([]byte(bankEvent), "wrong")); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad signature, got %d", resp.Code)
	}
	if resp := post(handler, []byte(bankEvent), sign([]byte(bankEvent), "shh")); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid signature, got %d", resp.Code)
	}
}

func TestBankTransferRejectsOversizedPayload(t *testing.T) {
	svc := &fakePaymentService{}
	handler := BankTransfer(svc, newGuard(t, "bank"), "shh", testLogger())
	body := append([]byte(bankEvent), bytes.Repeat([]byte(" "), maxPayloadBytes)...)

	resp := post(handler, body, sign(body, "shh"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", resp.Code, resp.Body.String())
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(string(pkgerrors.CodeValidation))) {
		t.Fatalf("expected validation error body, got %s", resp.Body.String())
	}
	if svc.calls != 0 {
		t.Fatal("service must not run")
	}
}

func TestCourierDeliveredEvent(t *testing.T) {
	svc := &fakeShipmentService{}
	handler := Courier(svc, newGuard(t, "courier"), "", testLogger())
	body := []byte(`{"event_id":"c-1","tracking_number":"JNE123","status":"DELIVERED","description":"received","occurred_at":"2026-10-02T08:00:00Z"}`)

	if resp := post(handler, body, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp := post(handler, body, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected duplicate 200 got %d", resp.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one event handled, got %d", svc.calls)
	}
	if svc.events[0].Status != enums.ShipmentStatusDelivered {
		t.Fatalf("expected normalized status, got %q", svc.events[0].Status)
	}
}

func TestCourierUnknownTrackingReleasesGuard(t *testing.T) {
	svc := &fakeShipmentService{err: pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")}
	handler := Courier(svc, newGuard(t, "courier"), "", testLogger())
	body := []byte(`{"event_id":"c-2","tracking_number":"X","status":"in_transit"}`)

	if resp := post(handler, body, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	svc.err = nil
	if resp := post(handler, body, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected retry 200 got %d", resp.Code)
	}
}

type failingGuard struct{}

func (failingGuard) CheckAndMark(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingGuard) Delete(context.Context, string) error { return nil }

func TestCourierGuardFailure(t *testing.T) {
	svc := &fakeShipmentService{}
	handler := Courier(svc, failingGuard{}, "", testLogger())
	body := []byte(`{"event_id":"c-3","tracking_number":"X","status":"in_transit"}`)
	if resp := post(handler, body, ""); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not run when the guard is unavailable")
	}
}
