package middleware

import (
	"context"
	"encoding/json"
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

	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

var testActor = uuid.New()

func keyedRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payouts/calculate", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req.WithContext(WithActor(req.Context(), testActor, enums.ActorRoleAdmin))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestIdempotentRequiresKey(t *testing.T) {
	called := false
	handler := Idempotent(newFakeStore(), IdempotencyStandard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, key := range []string{"", strings.Repeat("k", maxIdempotencyKey+1)} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, keyedRequest(key, `{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.False(t, called)
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, IdempotencyCritical, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":` + string(body) + `}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest("batch-w10", `{"n":1}`))
	require.Equal(t, http.StatusCreated, first.Code)

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, keyedRequest("batch-w10", `{"n":1}`))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, `{"data":{"n":1}}`, replay.Body.String(), "the handler still sees the body")
	assert.Equal(t, 1, calls)

	key := store.IdempotencyKey(testActor.String()+"|POST|/api/admin/v1/payouts/calculate", "batch-w10")
	assert.Equal(t, IdempotencyCritical, store.ttls[key])
}

func TestIdempotentRejectsChangedBody(t *testing.T) {
	handler := Idempotent(newFakeStore(), IdempotencyStandard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedRequest("xyz", `{"n":1}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest("xyz", `{"n":2}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, rec))
}

func TestIdempotentRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	handler = Idempotent(store, IdempotencyStandard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A duplicate arrives while the first request still holds the claim.
		inner = httptest.NewRecorder()
		handler.ServeHTTP(inner, keyedRequest("dup", `{}`))
		w.WriteHeader(http.StatusOK)
	}))

	outer := httptest.NewRecorder()
	handler.ServeHTTP(outer, keyedRequest("dup", `{}`))

	assert.Equal(t, http.StatusOK, outer.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Contains(t, inner.Body.String(), "in progress")
}

func TestIdempotentReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, IdempotencyStandard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), keyedRequest("retry-me", `{}`))
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotentScopesKeysByActor(t *testing.T) {
	calls := 0
	handler := Idempotent(newFakeStore(), IdempotencyStandard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedRequest("same", `{}`))
	other := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payouts/calculate", strings.NewReader(`{}`))
	other.Header.Set(idempotencyHeader, "same")
	other = other.WithContext(WithActor(other.Context(), uuid.New(), enums.ActorRoleAdmin))
	handler.ServeHTTP(httptest.NewRecorder(), other)

	assert.Equal(t, 2, calls)
}

func TestIdempotentWithoutStorePassesThrough(t *testing.T) {
	called := false
	Idempotent(nil, IdempotencyStandard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(httptest.NewRecorder(), keyedRequest("", `{}`))
	assert.True(t, called)
}
