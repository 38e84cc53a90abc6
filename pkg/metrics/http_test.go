package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsGroupsByRouteAndStatusClass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Request(http.MethodPost, "/api/v1/orders/{orderId}/cancel", http.StatusConflict, 20*time.Millisecond)
	m.Request(http.MethodPost, "/api/v1/orders/{orderId}/cancel", http.StatusUnprocessableEntity, 10*time.Millisecond)
	m.Request(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	cancel, err := series(mfs, "settlement_http_request_duration_seconds", map[string]string{
		"method": "POST", "route": "/api/v1/orders/{orderId}/cancel", "status": "4xx",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, cancel.GetHistogram().GetSampleCount())

	unmatched, err := series(mfs, "settlement_http_request_duration_seconds", map[string]string{
		"method": "GET", "route": "unmatched", "status": "4xx",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, unmatched.GetHistogram().GetSampleCount())
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(0))
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	assert.NotPanics(t, func() { m.Request("GET", "/", 200, time.Second) })
	assert.NotPanics(t, func() { NewHTTPMetrics(nil).Request("GET", "/", 200, time.Second) })
}
