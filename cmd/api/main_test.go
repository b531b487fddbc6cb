package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

func TestSetupMetricsExposesLifecycleMetrics(t *testing.T) {
	handler, summary, m := setupMetrics(logging.Discard())
	require.NotNil(t, handler)
	require.NotNil(t, summary)
	require.NotNil(t, m)

	m.ObserveCapture("captured")
	m.ObserveRefund("full", "issued")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "go_goroutines"), "runtime collector missing")
	assert.Contains(t, body, "captured")
	assert.Contains(t, body, "issued")

	rr = httptest.NewRecorder()
	summary.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/metrics/summary", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"full/issued":1`)
}
