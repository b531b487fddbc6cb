package metrics

import (
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wolfman30/therapy-practice-api/internal/http/apiutil"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

const (
	familyCaptures       = "practice_payments_captured_total"
	familyRefunds        = "practice_payments_refunds_total"
	familyBookings       = "practice_bookings_created_total"
	familyGatewayLatency = "practice_payments_gateway_latency_seconds"
)

// Summary is the back-office view of lifecycle counters since process start.
type Summary struct {
	BookingsCreated map[string]float64        `json:"bookings_created"`
	Captures        map[string]float64        `json:"captures"`
	Refunds         map[string]float64        `json:"refunds"`
	GatewayLatency  map[string]LatencySummary `json:"gateway_latency"`
}

// LatencySummary condenses one gateway operation's histogram.
type LatencySummary struct {
	Count uint64  `json:"count"`
	P95Ms float64 `json:"p95_ms"`
}

// Summarize reads the lifecycle families out of gatherer.
func Summarize(gatherer prometheus.Gatherer) (Summary, error) {
	out := Summary{
		BookingsCreated: map[string]float64{},
		Captures:        map[string]float64{},
		Refunds:         map[string]float64{},
		GatewayLatency:  map[string]LatencySummary{},
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return out, err
	}
	for _, mf := range mfs {
		switch mf.GetName() {
		case familyBookings:
			sumCounters(mf, out.BookingsCreated, "result")
		case familyCaptures:
			sumCounters(mf, out.Captures, "result")
		case familyRefunds:
			sumCounters(mf, out.Refunds, "kind", "result")
		case familyGatewayLatency:
			for _, m := range mf.GetMetric() {
				h := m.GetHistogram()
				if h == nil || h.GetSampleCount() == 0 {
					continue
				}
				out.GatewayLatency[labelKey(m, "operation")] = LatencySummary{
					Count: h.GetSampleCount(),
					P95Ms: histogramQuantile(0.95, h) * 1000,
				}
			}
		}
	}
	return out, nil
}

func sumCounters(mf *dto.MetricFamily, into map[string]float64, labels ...string) {
	for _, m := range mf.GetMetric() {
		into[labelKey(m, labels...)] += m.GetCounter().GetValue()
	}
}

// labelKey joins the named label values with "/".
func labelKey(m *dto.Metric, names ...string) string {
	values := make([]string, 0, len(names))
	for _, name := range names {
		v := ""
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name {
				v = lp.GetValue()
				break
			}
		}
		values = append(values, v)
	}
	return strings.Join(values, "/")
}

// histogramQuantile interpolates linearly inside the bucket holding q.
func histogramQuantile(q float64, h *dto.Histogram) float64 {
	buckets := append([]*dto.Bucket(nil), h.GetBucket()...)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].GetUpperBound() < buckets[j].GetUpperBound() })

	target := q * float64(h.GetSampleCount())
	var prevUpper, prevCum float64
	for _, b := range buckets {
		upper, cum := b.GetUpperBound(), float64(b.GetCumulativeCount())
		if cum < target {
			prevUpper, prevCum = upper, cum
			continue
		}
		if math.IsInf(upper, 1) || cum == prevCum {
			return prevUpper
		}
		return prevUpper + (target-prevCum)/(cum-prevCum)*(upper-prevUpper)
	}
	return prevUpper
}

// SummaryHandler serves GET /admin/metrics/summary.
type SummaryHandler struct {
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

func NewSummaryHandler(gatherer prometheus.Gatherer, logger *logging.Logger) *SummaryHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SummaryHandler{gatherer: gatherer, logger: logger}
}

func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summary, err := Summarize(h.gatherer)
	if err != nil {
		h.logger.Error("metrics gather failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, summary)
}
