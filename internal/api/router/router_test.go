package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/therapy-practice-api/internal/coupons"
	httpmiddleware "github.com/wolfman30/therapy-practice-api/internal/http/middleware"
	"github.com/wolfman30/therapy-practice-api/internal/observability/metrics"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

const testSecret = "router-secret"

type emptyCouponStore struct{}

func (emptyCouponStore) GetByCode(context.Context, string) (*coupons.Coupon, error) {
	return nil, coupons.ErrNotFound
}
func (emptyCouponStore) Insert(context.Context, *coupons.Coupon) error { return nil }
func (emptyCouponStore) Update(_ context.Context, c *coupons.Coupon) (*coupons.Coupon, error) {
	return c, nil
}
func (emptyCouponStore) SetActive(context.Context, string, bool, time.Time) error { return nil }
func (emptyCouponStore) List(context.Context, bool) ([]coupons.Coupon, error) {
	return nil, nil
}
func (emptyCouponStore) Redeem(context.Context, string, string) (bool, error) { return true, nil }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, health pinger) http.Handler {
	t.Helper()
	r, _ := newTestRouterWithMetrics(t, health)
	return r
}

func newTestRouterWithMetrics(t *testing.T, health pinger) (http.Handler, *metrics.LifecycleMetrics) {
	t.Helper()
	logger := logging.Default()
	validator := coupons.NewValidator(emptyCouponStore{}, nil, logger)
	registry := prometheus.NewRegistry()
	m := metrics.NewLifecycleMetrics(registry)
	return New(&Config{
		Logger:    logger,
		Coupons:   coupons.NewHandler(validator, logger),
		Health:    health,
		JWTSecret: testSecret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		MetricsSummary: metrics.NewSummaryHandler(registry, logger),
	}), m
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	claims := httpmiddleware.Claims{
		Email: role + "@practice.example",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   role + "-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func serve(h http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	rec := serve(newTestRouter(t, stubPinger{}), http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterHealthReportsDatabaseOutage(t *testing.T) {
	rec := serve(newTestRouter(t, stubPinger{err: errors.New("connection refused")}), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	rec := serve(newTestRouter(t, nil), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterCouponValidateIsPublic(t *testing.T) {
	rec := serve(newTestRouter(t, nil), http.MethodPost, "/api/coupons/validate", "", `{"code":"nope","amount_minor":150000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res coupons.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.False(t, res.Valid)
}

func TestRouterAdminRequiresStaff(t *testing.T) {
	r := newTestRouter(t, nil)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin/coupons", "", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin/coupons", bearer(t, "client"), "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin/coupons", "Bearer not-a-token", "").Code)

	rec := serve(r, http.MethodGet, "/admin/coupons", bearer(t, "therapist"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"coupons":[]}`, rec.Body.String())
}

func TestRouterMetricsSummaryIsStaffOnly(t *testing.T) {
	r, m := newTestRouterWithMetrics(t, nil)
	m.ObserveRefund("full", "issued")

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin/metrics/summary", "", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin/metrics/summary", bearer(t, "client"), "").Code)

	rec := serve(r, http.MethodGet, "/admin/metrics/summary", bearer(t, "admin"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary metrics.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, float64(1), summary.Refunds["full/issued"])
}

func TestRouterUnmountedRoutes(t *testing.T) {
	r := newTestRouter(t, nil)

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/webhooks/gateway", "", "{}").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/slots?date=2026-01-12", "", "").Code)
}
