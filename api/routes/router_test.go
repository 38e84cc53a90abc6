package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-backend/api/controllers"
	"github.com/angelmondragon/settlement-backend/internal/payouts"
	"github.com/angelmondragon/settlement-backend/internal/sellers"
	"github.com/angelmondragon/settlement-backend/pkg/config"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore { return &memoryStore{values: map[string]string{}} }

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryStore) RateLimitKey(policy, subject string) string {
	return "rl:" + policy + ":" + subject
}

func (m *memoryStore) IncrWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

type stubPayouts struct {
	payouts.Service
	calculated int
}

func (s *stubPayouts) List(context.Context, payouts.ListParams) (*payouts.ListResult, error) {
	return &payouts.ListResult{}, nil
}

func (s *stubPayouts) CalculatePayouts(_ context.Context, start, end time.Time) (*payouts.BatchResult, error) {
	s.calculated++
	return &payouts.BatchResult{PeriodStart: start, PeriodEnd: end}, nil
}

type stubSellers struct {
	sellers.Service
	byUser map[uuid.UUID]uuid.UUID
}

func (s stubSellers) GetByUserID(_ context.Context, userID uuid.UUID) (*sellers.SellerView, error) {
	sellerID, ok := s.byUser[userID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
	}
	return &sellers.SellerView{ID: sellerID, UserID: userID}, nil
}

func (s stubSellers) Get(_ context.Context, id uuid.UUID) (*sellers.SellerView, error) {
	return &sellers.SellerView{ID: id, Name: "Meera Crafts"}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *stubPayouts, stubSellers) {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	pay := &stubPayouts{}
	sel := stubSellers{byUser: map[uuid.UUID]uuid.UUID{}}
	router := NewRouter(Params{
		Config:  cfg,
		Logger:  logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		Store:   newMemoryStore(),
		Ready:   map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}},
		Payouts: pay,
		Sellers: sel,
	})
	return router, pay, sel
}

func do(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func actor(role enums.ActorRole) (uuid.UUID, map[string]string) {
	id := uuid.New()
	return id, map[string]string{"X-Actor-Id": id.String(), "X-Actor-Role": string(role)}
}

func TestHealthRoutes(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(router, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(router, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresActor(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(router, http.MethodGet, "/api/admin/v1/payouts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/checkout", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, _, _ := newTestRouter(t)

	_, sellerHeaders := actor(enums.ActorRoleSeller)
	rec := do(router, http.MethodGet, "/api/admin/v1/payouts", "", sellerHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, adminHeaders := actor(enums.ActorRoleAdmin)
	rec = do(router, http.MethodGet, "/api/admin/v1/payouts", "", adminHeaders)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCalculatePayoutsIsIdempotent(t *testing.T) {
	router, pay, _ := newTestRouter(t)
	_, headers := actor(enums.ActorRoleAdmin)
	body := `{"period_start":"2026-03-01T00:00:00Z","period_end":"2026-03-07T23:59:59Z"}`

	rec := do(router, http.MethodPost, "/api/admin/v1/payouts/calculate", body, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "Idempotency-Key is required")
	assert.Zero(t, pay.calculated)

	headers["Idempotency-Key"] = "batch-2026-w10"
	first := do(router, http.MethodPost, "/api/admin/v1/payouts/calculate", body, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := do(router, http.MethodPost, "/api/admin/v1/payouts/calculate", body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, pay.calculated)
}

func TestSellerRoutesResolveSeller(t *testing.T) {
	router, _, sel := newTestRouter(t)

	userID, headers := actor(enums.ActorRoleSeller)
	rec := do(router, http.MethodGet, "/api/v1/seller/me", "", headers)
	assert.Equal(t, http.StatusForbidden, rec.Code, "actor without a seller account")

	sellerID := uuid.New()
	sel.byUser[userID] = sellerID
	rec = do(router, http.MethodGet, "/api/v1/seller/me", "", headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), sellerID.String())

	_, buyerHeaders := actor(enums.ActorRoleBuyer)
	rec = do(router, http.MethodGet, "/api/v1/seller/me", "", buyerHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhooksBypassActorAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// No payment service is wired, so the handler reports an internal error
	// instead of the auth middleware rejecting the request.
	rec := do(router, http.MethodPost, "/api/v1/webhooks/payments", `{}`, nil)
	assert.NotEqual(t, http.StatusUnauthorized, rec.Code)
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}
