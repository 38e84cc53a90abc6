package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"payout_id": "p1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"payout_id":"p1"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestWriteErrorExposesCallerMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot move from delivered to shipped").
		WithDetails(map[string]any{"from": "delivered", "to": "shipped"})
	WriteError(context.Background(), nil, rec, err)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INVALID_TRANSITION", body.Code)
	assert.Equal(t, "order cannot move from delivered to shipped", body.Message)
	assert.Equal(t, map[string]any{"from": "delivered", "to": "shipped"}, body.Details)
}

func TestWriteErrorStatuses(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeUnauthenticated:     http.StatusUnauthorized,
		pkgerrors.CodeAmountMismatch:      http.StatusConflict,
		pkgerrors.CodeRateLimit:           http.StatusTooManyRequests,
		pkgerrors.CodeUpstreamUnavailable: http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		rec := httptest.NewRecorder()
		WriteError(context.Background(), nil, rec, pkgerrors.Wrap(code, errors.New("cause"), "wrapped"))
		assert.Equal(t, status, rec.Code, code)
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: &logs})
	rec := httptest.NewRecorder()
	WriteError(context.Background(), logg, rec, errors.New("pq: relation \"seller_payouts\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.Equal(t, "internal server error", body.Message)
	assert.Nil(t, body.Details)
	assert.Contains(t, logs.String(), "seller_payouts", "the cause is logged, not returned")

	rec = httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, errors.New("gateway 502"), "verify payment").
		WithDetails(map[string]any{"gateway_order_id": "gw_1"}))
	body = decodeError(t, rec)
	assert.Equal(t, "upstream provider unavailable", body.Message)
	assert.Nil(t, body.Details)
}
