package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestSummarizeLifecycleFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetrics(reg)

	m.ObserveBookingCreated("created")
	m.ObserveBookingCreated("conflict")
	m.ObserveCapture("paid")
	m.ObserveCapture("paid")
	m.ObserveCapture("signature_mismatch")
	m.ObserveRefund("partial", "issued")
	for i := 0; i < 20; i++ {
		m.ObserveGatewayLatency("refund", 0.2)
	}

	s, err := Summarize(reg)
	require.NoError(t, err)

	assert.Equal(t, 1.0, s.BookingsCreated["conflict"])
	assert.Equal(t, 2.0, s.Captures["paid"])
	assert.Equal(t, 1.0, s.Captures["signature_mismatch"])
	assert.Equal(t, 1.0, s.Refunds["partial/issued"])
	require.Contains(t, s.GatewayLatency, "refund")
	assert.Equal(t, uint64(20), s.GatewayLatency["refund"].Count)
	assert.InDelta(t, 242.5, s.GatewayLatency["refund"].P95Ms, 0.01)
}

func TestHistogramQuantileInterpolates(t *testing.T) {
	h := &dto.Histogram{
		SampleCount: proto.Uint64(10),
		Bucket: []*dto.Bucket{
			{UpperBound: proto.Float64(1), CumulativeCount: proto.Uint64(5)},
			{UpperBound: proto.Float64(0.5), CumulativeCount: proto.Uint64(0)},
			{UpperBound: proto.Float64(2), CumulativeCount: proto.Uint64(10)},
		},
	}
	assert.InDelta(t, 1.5, histogramQuantile(0.75, h), 1e-9)
	assert.InDelta(t, 0.75, histogramQuantile(0.25, h), 1e-9)
}

func TestSummaryHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewLifecycleMetrics(reg).ObserveCapture("paid")

	rec := httptest.NewRecorder()
	NewSummaryHandler(reg, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/metrics/summary", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var s Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	assert.Equal(t, 1.0, s.Captures["paid"])
}
