package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dermashop/dermashop-backend/internal/cart"
	"github.com/dermashop/dermashop-backend/internal/orders"
	"github.com/dermashop/dermashop-backend/pkg/auth"
	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	pkgredis "github.com/dermashop/dermashop-backend/pkg/redis"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubCartService struct {
	cart.Service
	calls int
}

func (s *stubCartService) GetCart(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	s.calls++
	return &cart.Cart{Items: []cart.CartItem{}}, nil
}

type stubOrdersService struct {
	orders.Service
	mu    sync.Mutex
	calls int
}

func (s *stubOrdersService) Checkout(ctx context.Context, userID uuid.UUID, input orders.CheckoutInput) (*orders.OrderDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &orders.OrderDTO{ID: uuid.New()}, nil
}

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{data: map[string]string{}}
}

func (m *memoryIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return "", pkgredis.ErrNil
	}
	return value, nil
}

func (m *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", Port: "0"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "dermashop", ExpirationMinutes: 5},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func bearer(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(router http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, testLogger(), Dependencies{
		DB:       stubPinger{},
		Gatherer: prometheus.NewRegistry(),
	})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/metrics", "", nil).Code)
}

func TestReadinessFailsWhenDependencyDown(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), Dependencies{DB: stubPinger{err: context.DeadlineExceeded}})
	resp := serve(router, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestCustomerRoutesRequireToken(t *testing.T) {
	svc := &stubCartService{}
	router := NewRouter(testConfig(), testLogger(), Dependencies{Cart: svc})

	resp := serve(router, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Zero(t, svc.calls)
}

func TestCustomerCanReadCart(t *testing.T) {
	cfg := testConfig()
	svc := &stubCartService{}
	router := NewRouter(cfg, testLogger(), Dependencies{Cart: svc})

	resp := serve(router, http.MethodGet, "/api/v1/cart", "", map[string]string{
		"Authorization": bearer(t, cfg, enums.RoleCustomer),
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 1, svc.calls)
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, testLogger(), Dependencies{})

	resp := serve(router, http.MethodPost, "/api/admin/v1/products", `{"name":"Serum"}`, map[string]string{
		"Authorization": bearer(t, cfg, enums.RoleCustomer),
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCheckoutRequiresIdempotencyKeyAndReplays(t *testing.T) {
	cfg := testConfig()
	svc := &stubOrdersService{}
	router := NewRouter(cfg, testLogger(), Dependencies{
		Orders:      svc,
		Idempotency: newMemoryIdempotencyStore(),
	})
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	require.NoError(t, err)

	body := `{"recipient_name":"Ayu","phone":"081234567890","shipping_address":"Jl. Melati 1, Bandung"}`
	headers := map[string]string{"Authorization": "Bearer " + token, "Content-Type": "application/json"}

	resp := serve(router, http.MethodPost, "/api/v1/orders", body, headers)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, svc.calls)

	headers["Idempotency-Key"] = "checkout-1"
	first := serve(router, http.MethodPost, "/api/v1/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := serve(router, http.MethodPost, "/api/v1/orders", body, headers)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, svc.calls)
}

func TestWebhooksSkipAuth(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), Dependencies{})
	resp := serve(router, http.MethodPost, "/api/v1/webhooks/bank-transfer", `{}`, nil)
	assert.NotEqual(t, http.StatusUnauthorized, resp.Code)
}
