package metrics

import "github.com/prometheus/client_golang/prometheus"

// LifecycleMetrics exposes counters/histograms for the booking, payment and
// refund lifecycle. A nil *LifecycleMetrics is valid and records nothing.
type LifecycleMetrics struct {
	bookingsCreated   *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	captures          *prometheus.CounterVec
	refunds           *prometheus.CounterVec
	couponValidations *prometheus.CounterVec
	gatewayLatency    *prometheus.HistogramVec
}

func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	m := &LifecycleMetrics{
		bookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Booking create attempts by result",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "bookings",
			Name:      "transitions_total",
			Help:      "Booking status transitions by edge and result",
		}, []string{"from", "to", "result"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "payments",
			Name:      "captured_total",
			Help:      "Payment capture verifications by result",
		}, []string{"result"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "payments",
			Name:      "refunds_total",
			Help:      "Refund attempts by kind and result",
		}, []string{"kind", "result"}),
		couponValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "coupons",
			Name:      "validations_total",
			Help:      "Coupon validations by outcome",
		}, []string{"outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "practice",
			Subsystem: "payments",
			Name:      "gateway_latency_seconds",
			Help:      "Latency of payment gateway calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsCreated, m.transitions, m.captures, m.refunds, m.couponValidations, m.gatewayLatency)
	return m
}

func (m *LifecycleMetrics) ObserveBookingCreated(result string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(result).Inc()
}

func (m *LifecycleMetrics) ObserveTransition(from, to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, result).Inc()
}

func (m *LifecycleMetrics) ObserveCapture(result string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(result).Inc()
}

func (m *LifecycleMetrics) ObserveRefund(kind, result string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(kind, result).Inc()
}

func (m *LifecycleMetrics) ObserveCouponValidation(outcome string) {
	if m == nil {
		return
	}
	m.couponValidations.WithLabelValues(outcome).Inc()
}

func (m *LifecycleMetrics) ObserveGatewayLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(operation).Observe(seconds)
}
