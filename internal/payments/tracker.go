package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/therapy-practice-api/internal/bookings"
	"github.com/wolfman30/therapy-practice-api/internal/coupons"
	"github.com/wolfman30/therapy-practice-api/internal/events"
	"github.com/wolfman30/therapy-practice-api/internal/identity"
	"github.com/wolfman30/therapy-practice-api/internal/observability/metrics"
	"github.com/wolfman30/therapy-practice-api/internal/refunds"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// Store is the persistence the tracker needs.
type Store interface {
	Insert(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*Payment, error)
	GetEffectiveByBooking(ctx context.Context, bookingID string) (*Payment, error)
	MarkPaid(ctx context.Context, id, gatewayPaymentID string, at time.Time) (*Payment, error)
	MarkFailed(ctx context.Context, id string, at time.Time) (*Payment, error)
	Link(ctx context.Context, id, bookingID string, at time.Time) (*Payment, error)
	MarkRefunded(ctx context.Context, id string, amountMinor int64, gatewayRefundID string, at time.Time) (*Payment, error)
	ExpirePending(ctx context.Context, cutoff, at time.Time) (int64, error)
}

type couponService interface {
	Validate(ctx context.Context, code string, orderMinor int64, now time.Time) (coupons.Result, error)
	Redeem(ctx context.Context, code, paymentID string) (bool, error)
}

// Ledger is the part of the booking ledger the tracker drives.
type Ledger interface {
	Get(ctx context.Context, actor identity.Actor, id string) (*bookings.Booking, error)
	ConfirmPaid(ctx context.Context, bookingID string) (*bookings.Booking, error)
}

type outboxWriter interface {
	Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error)
}

type velocityChecker interface {
	CheckOrderVelocity(ctx context.Context, email string) (*VelocityResult, error)
}

// TrackerConfig holds gateway credentials and defaults.
type TrackerConfig struct {
	KeyID     string
	KeySecret string
	Currency  string
}

// Tracker owns a payment's lifecycle from order creation to refund.
type Tracker struct {
	store    Store
	gateway  Gateway
	ledger   Ledger
	coupons  couponService
	policy   refunds.Policy
	outbox   outboxWriter
	velocity velocityChecker
	metrics  *metrics.LifecycleMetrics
	cfg      TrackerConfig
	now      func() time.Time
	logger   *logging.Logger
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

func WithCoupons(c couponService) TrackerOption { return func(t *Tracker) { t.coupons = c } }

func WithOutbox(o outboxWriter) TrackerOption { return func(t *Tracker) { t.outbox = o } }

func WithVelocity(v velocityChecker) TrackerOption { return func(t *Tracker) { t.velocity = v } }

func WithMetrics(m *metrics.LifecycleMetrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

func WithClock(now func() time.Time) TrackerOption { return func(t *Tracker) { t.now = now } }

// NewTracker builds a Tracker.
func NewTracker(store Store, gateway Gateway, ledger Ledger, policy refunds.Policy, cfg TrackerConfig, logger *logging.Logger, opts ...TrackerOption) *Tracker {
	if store == nil {
		panic("payments: store required")
	}
	if gateway == nil {
		panic("payments: gateway required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	t := &Tracker{
		store:   store,
		gateway: gateway,
		ledger:  ledger,
		policy:  policy,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateOrder opens a gateway order for the payable amount. A free
// consultation, or an order a coupon discounts to zero, is settled locally as
// paid without calling the gateway. A free consultation may only name a
// booking that carries the free consultation marker. An abandoned pending
// order for the same booking is failed before the new one is opened.
func (t *Tracker) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.create_order")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("practice.amount_minor", req.AmountMinor),
		attribute.Bool("practice.free_consultation", req.FreeConsultation),
	)

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = t.cfg.Currency
	}
	if req.FreeConsultation {
		if req.AmountMinor != 0 {
			return nil, fmt.Errorf("%w: free consultation must be zero", ErrInvalidAmount)
		}
		if req.BookingID != "" {
			if err := t.requireFreeBooking(ctx, req.BookingID); err != nil {
				return nil, err
			}
			if err := t.supersedePending(ctx, req.BookingID); err != nil {
				return nil, err
			}
		}
		return t.settleFree(ctx, req, currency, 0, 0, "")
	}
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	if t.velocity != nil && req.CustomerEmail != "" {
		res, err := t.velocity.CheckOrderVelocity(ctx, req.CustomerEmail)
		if err == nil && !res.Allowed {
			return nil, ErrVelocityExceeded
		}
	}

	payable := req.AmountMinor
	var discount int64
	code := coupons.NormalizeCode(req.CouponCode)
	if code != "" {
		if t.coupons == nil {
			return nil, (coupons.Result{Code: code, Reason: coupons.ReasonNotFound}).Err()
		}
		res, err := t.coupons.Validate(ctx, code, req.AmountMinor, t.now())
		if err != nil {
			return nil, fmt.Errorf("payments: validate coupon: %w", err)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		discount = res.DiscountAmount
		payable = req.AmountMinor - discount
	}
	if req.BookingID != "" {
		if err := t.supersedePending(ctx, req.BookingID); err != nil {
			return nil, err
		}
	}
	if payable == 0 {
		return t.settleFree(ctx, req, currency, req.AmountMinor, discount, code)
	}

	paymentID := uuid.NewString()
	gwOrder, err := t.gateway.CreateOrder(ctx, GatewayOrderRequest{
		AmountMinor: payable,
		Currency:    currency,
		Receipt:     "rcpt_" + paymentID[:18],
		Notes:       map[string]string{"payment_id": paymentID},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := t.now().UTC()
	p := &Payment{
		ID:             paymentID,
		BookingID:      req.BookingID,
		GatewayOrderID: gwOrder.ID,
		AmountMinor:    payable,
		Currency:       currency,
		Status:         StatusPending,
		Metadata:       orderMetadata(req, req.AmountMinor, discount, code),
		CreatedAt:      now,
	}
	if err := t.store.Insert(ctx, p); err != nil {
		return nil, err
	}
	t.logger.Info("payment order created",
		"payment_id", p.ID,
		"order_id", p.GatewayOrderID,
		"amount_minor", payable,
		"discount_minor", discount,
	)
	return &Order{
		PaymentID:       p.ID,
		GatewayOrderID:  p.GatewayOrderID,
		AmountMinor:     payable,
		BaseAmountMinor: req.AmountMinor,
		DiscountMinor:   discount,
		Currency:        currency,
		KeyID:           t.cfg.KeyID,
		Status:          p.Status,
	}, nil
}

// requireFreeBooking rejects settling a booking that is not a free
// consultation without a verified payment.
func (t *Tracker) requireFreeBooking(ctx context.Context, bookingID string) error {
	if t.ledger == nil {
		return fmt.Errorf("%w: cannot check free consultation booking %s", ErrInvalidAmount, bookingID)
	}
	b, err := t.ledger.Get(ctx, identity.System(), bookingID)
	if err != nil {
		return err
	}
	if !b.IsFreeConsultation() {
		t.logger.Warn("free consultation order rejected for paid booking", "booking_id", bookingID)
		return fmt.Errorf("%w: booking %s is not a free consultation", ErrInvalidAmount, bookingID)
	}
	return nil
}

// supersedePending fails an abandoned pending order for bookingID so a new
// checkout can replace it. A later capture of the old order is flagged for
// reconciliation. A paid or refunded payment keeps the booking.
func (t *Tracker) supersedePending(ctx context.Context, bookingID string) error {
	existing, err := t.store.GetEffectiveByBooking(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Status != StatusPending {
		return &StateError{PaymentID: existing.ID, Status: existing.Status, Op: "replace"}
	}
	if _, err := t.store.MarkFailed(ctx, existing.ID, t.now().UTC()); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	t.logger.Info("pending order superseded",
		"payment_id", existing.ID,
		"order_id", existing.GatewayOrderID,
		"booking_id", bookingID,
	)
	return nil
}

func (t *Tracker) settleFree(ctx context.Context, req OrderRequest, currency string, base, discount int64, code string) (*Order, error) {
	now := t.now().UTC()
	p := &Payment{
		ID:             uuid.NewString(),
		BookingID:      req.BookingID,
		GatewayOrderID: freeOrderPrefix + uuid.NewString(),
		AmountMinor:    0,
		Currency:       currency,
		Status:         StatusPaid,
		Metadata:       orderMetadata(req, base, discount, code),
		CreatedAt:      now,
		CapturedAt:     &now,
	}
	if err := t.store.Insert(ctx, p); err != nil {
		return nil, err
	}
	t.logger.Info("zero-amount order settled", "payment_id", p.ID, "booking_id", p.BookingID, "coupon_code", code)
	t.afterCapture(ctx, p)
	return &Order{
		PaymentID:       p.ID,
		GatewayOrderID:  p.GatewayOrderID,
		AmountMinor:     0,
		BaseAmountMinor: base,
		DiscountMinor:   discount,
		Currency:        currency,
		Status:          p.Status,
	}, nil
}

func orderMetadata(req OrderRequest, base, discount int64, code string) map[string]any {
	md := map[string]any{
		"base_amount_minor": base,
		"discount_minor":    discount,
	}
	if code != "" {
		md["coupon_code"] = code
	}
	if req.FreeConsultation {
		md["free_consultation"] = true
	}
	customer := map[string]any{}
	for k, v := range map[string]string{
		"name":         req.CustomerName,
		"email":        strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		"phone":        req.CustomerPhone,
		"session_type": req.SessionType,
	} {
		if v != "" {
			customer[k] = v
		}
	}
	if len(customer) > 0 {
		md["customer"] = customer
	}
	return md
}

// VerifyAndCapture marks the order paid once the gateway signature over
// orderID|paymentID checks out. A mismatch leaves the payment untouched.
func (t *Tracker) VerifyAndCapture(ctx context.Context, orderID, gatewayPaymentID, signature string) (*Payment, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.verify_capture")
	defer span.End()
	span.SetAttributes(attribute.String("practice.order_id", orderID))

	if !VerifyPaymentSignature(t.cfg.KeySecret, orderID, gatewayPaymentID, signature) {
		t.metrics.ObserveCapture("signature_mismatch")
		t.logger.Warn("payment signature mismatch",
			"order_id", orderID,
			"gateway_payment_id", gatewayPaymentID,
		)
		span.SetAttributes(attribute.Bool("practice.signature_valid", false))
		return nil, ErrVerification
	}
	p, err := t.store.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return t.capture(ctx, p, gatewayPaymentID)
}

// CaptureFromWebhook applies a verified gateway capture notification. The
// reported amount must match the order.
func (t *Tracker) CaptureFromWebhook(ctx context.Context, orderID, gatewayPaymentID string, amountMinor int64) (*Payment, error) {
	p, err := t.store.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if amountMinor != p.AmountMinor {
		t.metrics.ObserveCapture("amount_mismatch")
		t.logger.Warn("webhook capture amount mismatch",
			"payment_id", p.ID,
			"expected_minor", p.AmountMinor,
			"reported_minor", amountMinor,
		)
		return nil, fmt.Errorf("%w: captured %d, expected %d", ErrInvalidAmount, amountMinor, p.AmountMinor)
	}
	return t.capture(ctx, p, gatewayPaymentID)
}

func (t *Tracker) capture(ctx context.Context, p *Payment, gatewayPaymentID string) (*Payment, error) {
	switch p.Status {
	case StatusPaid:
		if p.GatewayPaymentID == gatewayPaymentID {
			t.metrics.ObserveCapture("duplicate")
			return p, nil
		}
		return nil, &StateError{PaymentID: p.ID, Status: p.Status, Op: "capture"}
	case StatusFailed, StatusRefunded:
		// The gateway took money for an order we no longer consider open.
		t.flagReconciliation(ctx, p, "capture_after_"+string(p.Status), nil)
		t.metrics.ObserveCapture("rejected")
		return nil, &StateError{PaymentID: p.ID, Status: p.Status, Op: "capture"}
	}

	paid, err := t.store.MarkPaid(ctx, p.ID, gatewayPaymentID, t.now().UTC())
	if errors.Is(err, ErrNotFound) {
		// Lost a race with another capture; report what won.
		current, getErr := t.store.GetByID(ctx, p.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == StatusPaid && current.GatewayPaymentID == gatewayPaymentID {
			t.metrics.ObserveCapture("duplicate")
			return current, nil
		}
		return nil, &StateError{PaymentID: current.ID, Status: current.Status, Op: "capture"}
	}
	if err != nil {
		t.metrics.ObserveCapture("error")
		return nil, err
	}
	t.metrics.ObserveCapture("captured")
	t.logger.Info("payment captured",
		"payment_id", paid.ID,
		"order_id", paid.GatewayOrderID,
		"booking_id", paid.BookingID,
		"amount_minor", paid.AmountMinor,
	)
	t.afterCapture(ctx, paid)
	return paid, nil
}

// afterCapture runs the dependent steps of a capture. Each failure is logged;
// none undoes the capture.
func (t *Tracker) afterCapture(ctx context.Context, p *Payment) {
	if t.outbox != nil {
		capturedAt := t.now().UTC()
		if p.CapturedAt != nil {
			capturedAt = *p.CapturedAt
		}
		evt := events.PaymentCapturedV1{
			PaymentID:        p.ID,
			BookingID:        p.BookingID,
			GatewayOrderID:   p.GatewayOrderID,
			GatewayPaymentID: p.GatewayPaymentID,
			AmountMinor:      p.AmountMinor,
			Currency:         p.Currency,
			CapturedAt:       capturedAt,
		}
		if _, err := t.outbox.Insert(ctx, events.TypePaymentCaptured, evt); err != nil {
			t.logger.Error("failed to enqueue capture event", "payment_id", p.ID, "error", err)
		}
	}
	if code := p.couponCode(); code != "" && t.coupons != nil {
		if _, err := t.coupons.Redeem(ctx, code, p.ID); err != nil {
			t.logger.Error("coupon redemption failed", "payment_id", p.ID, "code", code, "error", err)
		}
	}
	if p.BookingID != "" {
		t.confirmBooking(ctx, p)
	}
}

func (t *Tracker) confirmBooking(ctx context.Context, p *Payment) {
	if t.ledger == nil {
		return
	}
	if _, err := t.ledger.ConfirmPaid(ctx, p.BookingID); err != nil {
		t.logger.Error("booking confirmation after capture failed",
			"payment_id", p.ID,
			"booking_id", p.BookingID,
			"error", err,
		)
	}
}

// MarkFailed records a gateway-reported failure on a pending payment.
func (t *Tracker) MarkFailed(ctx context.Context, orderID string) (*Payment, error) {
	p, err := t.store.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusFailed {
		return p, nil
	}
	if p.Status != StatusPending {
		return nil, &StateError{PaymentID: p.ID, Status: p.Status, Op: "fail"}
	}
	failed, err := t.store.MarkFailed(ctx, p.ID, t.now().UTC())
	if errors.Is(err, ErrNotFound) {
		return nil, &StateError{PaymentID: p.ID, Status: p.Status, Op: "fail"}
	}
	if err != nil {
		return nil, err
	}
	t.metrics.ObserveCapture("failed")
	t.logger.Info("payment failed", "payment_id", failed.ID, "order_id", orderID)
	return failed, nil
}

// LinkToBooking attaches a payment to a booking created after the order.
// Linking the same pair again is a no-op. A paid payment confirms the booking.
// A free consultation payment only links to a free consultation booking.
func (t *Tracker) LinkToBooking(ctx context.Context, orderID, bookingID string) (*Payment, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, fmt.Errorf("payments: booking id required")
	}
	var b *bookings.Booking
	if t.ledger != nil {
		var err error
		if b, err = t.ledger.Get(ctx, identity.System(), bookingID); err != nil {
			return nil, err
		}
	}
	p, err := t.store.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.isFreeConsultation() && (b == nil || !b.IsFreeConsultation()) {
		t.logger.Warn("free consultation payment rejected for paid booking",
			"payment_id", p.ID,
			"booking_id", bookingID,
		)
		return nil, fmt.Errorf("%w: booking %s is not a free consultation", ErrInvalidAmount, bookingID)
	}
	if p.BookingID == bookingID {
		return p, nil
	}
	if p.BookingID != "" {
		return nil, ErrAlreadyLinked
	}

	linked, err := t.store.Link(ctx, p.ID, bookingID, t.now().UTC())
	if errors.Is(err, ErrNotFound) {
		// Linked concurrently to another booking.
		return nil, ErrAlreadyLinked
	}
	if err != nil {
		return nil, err
	}
	t.logger.Info("payment linked", "payment_id", linked.ID, "booking_id", bookingID)
	if linked.Status == StatusPaid {
		t.confirmBooking(ctx, linked)
	}
	return linked, nil
}

// Refund returns the policy amount of a paid payment through the gateway.
// A gateway failure leaves the payment paid and is returned as is; refunds
// are never retried automatically. For a cancelled booking the notice period
// runs to the recorded cancellation time, not to requestedAt.
func (t *Tracker) Refund(ctx context.Context, ref Ref, requestedAt time.Time) (*RefundResult, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.refund")
	defer span.End()

	p, err := t.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("practice.payment_id", p.ID))

	switch p.Status {
	case StatusRefunded:
		return refundResultFrom(p, true), nil
	case StatusPaid:
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotRefundable, p.Status)
	}
	if p.BookingID == "" {
		return nil, fmt.Errorf("%w: payment %s is not linked to a booking", ErrNotRefundable, p.ID)
	}
	if t.ledger == nil {
		return nil, fmt.Errorf("payments: ledger required for refunds")
	}
	b, err := t.ledger.Get(ctx, identity.System(), p.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == bookings.StatusCancelled && b.CancelledAt != nil {
		requestedAt = *b.CancelledAt
	}
	return t.refundPayment(ctx, p, b, requestedAt)
}

func (t *Tracker) refundPayment(ctx context.Context, p *Payment, b *bookings.Booking, requestedAt time.Time) (*RefundResult, error) {
	quote, err := t.policy.Compute(b, p.AmountMinor, requestedAt)
	if err != nil {
		t.metrics.ObserveRefund("none", "policy_undefined")
		return nil, err
	}
	kind := "partial"
	if quote.FullRefund {
		kind = "full"
	}

	var refundID string
	if quote.AmountMinor > 0 && !p.IsFree() {
		gwRefund, err := t.gateway.Refund(ctx, GatewayRefundRequest{
			GatewayPaymentID: p.GatewayPaymentID,
			AmountMinor:      quote.AmountMinor,
			IdempotencyKey:   "refund-" + p.ID,
			Notes:            map[string]string{"booking_id": b.ID, "payment_id": p.ID},
		})
		if err != nil {
			result := "error"
			if IsGatewayTimeout(err) {
				result = "timeout"
			}
			t.metrics.ObserveRefund(kind, result)
			t.logger.Error("gateway refund failed",
				"payment_id", p.ID,
				"booking_id", b.ID,
				"amount_minor", quote.AmountMinor,
				"error", err,
			)
			return nil, err
		}
		refundID = gwRefund.ID
	}

	refunded, err := t.store.MarkRefunded(ctx, p.ID, quote.AmountMinor, refundID, t.now().UTC())
	if err != nil {
		// The gateway has the money moving; local state must be fixed by hand.
		t.metrics.ObserveRefund(kind, "unrecorded")
		t.flagReconciliation(ctx, p, "refund_not_recorded", err)
		if errors.Is(err, ErrNotFound) {
			return nil, &StateError{PaymentID: p.ID, Status: p.Status, Op: "refund"}
		}
		return nil, err
	}
	t.metrics.ObserveRefund(kind, "issued")
	t.logger.Info("payment refunded",
		"payment_id", refunded.ID,
		"booking_id", b.ID,
		"amount_minor", quote.AmountMinor,
		"full_refund", quote.FullRefund,
	)

	res := refundResultFrom(refunded, false)
	res.FullRefund = quote.FullRefund
	if t.outbox != nil {
		evt := events.RefundIssuedV1{
			PaymentID:       res.PaymentID,
			BookingID:       res.BookingID,
			AmountMinor:     res.AmountMinor,
			FullRefund:      res.FullRefund,
			GatewayRefundID: res.GatewayRefundID,
			RefundedAt:      res.RefundedAt,
		}
		if _, err := t.outbox.Insert(ctx, events.TypeRefundIssued, evt); err != nil {
			t.logger.Error("failed to enqueue refund event", "payment_id", p.ID, "error", err)
		}
	}
	return res, nil
}

// RefundBooking refunds the effective payment of a cancelled booking. A
// booking without a paid payment has nothing to refund.
func (t *Tracker) RefundBooking(ctx context.Context, b *bookings.Booking, requestedAt time.Time) (*bookings.RefundOutcome, error) {
	p, err := t.store.GetEffectiveByBooking(ctx, b.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case StatusPending, StatusFailed:
		return nil, nil
	case StatusRefunded:
		res := refundResultFrom(p, true)
		return &bookings.RefundOutcome{PaymentID: res.PaymentID, AmountMinor: res.AmountMinor, GatewayRefundID: res.GatewayRefundID}, nil
	}
	res, err := t.refundPayment(ctx, p, b, requestedAt)
	if err != nil {
		return nil, err
	}
	return &bookings.RefundOutcome{
		PaymentID:       res.PaymentID,
		AmountMinor:     res.AmountMinor,
		FullRefund:      res.FullRefund,
		GatewayRefundID: res.GatewayRefundID,
	}, nil
}

// ExpirePending fails gateway orders that stayed pending longer than ttl.
func (t *Tracker) ExpirePending(ctx context.Context, ttl time.Duration) (int64, error) {
	now := t.now().UTC()
	return t.store.ExpirePending(ctx, now.Add(-ttl), now)
}

func (t *Tracker) resolve(ctx context.Context, ref Ref) (*Payment, error) {
	switch {
	case ref.GatewayPaymentID != "":
		return t.store.GetByGatewayPaymentID(ctx, ref.GatewayPaymentID)
	case ref.BookingID != "":
		return t.store.GetEffectiveByBooking(ctx, ref.BookingID)
	default:
		return nil, fmt.Errorf("%w: booking id or gateway payment id required", ErrNotFound)
	}
}

func (t *Tracker) flagReconciliation(ctx context.Context, p *Payment, reason string, cause error) {
	t.logger.Warn("payment needs reconciliation", "payment_id", p.ID, "booking_id", p.BookingID, "reason", reason)
	if t.outbox == nil {
		return
	}
	evt := events.ReconciliationRequiredV1{
		BookingID:  p.BookingID,
		PaymentID:  p.ID,
		Status:     string(p.Status),
		Reason:     reason,
		OccurredAt: t.now().UTC(),
	}
	if cause != nil {
		evt.Error = cause.Error()
	}
	if _, err := t.outbox.Insert(ctx, events.TypeReconciliationRequired, evt); err != nil {
		t.logger.Error("failed to enqueue reconciliation event", "payment_id", p.ID, "error", err)
	}
}

func refundResultFrom(p *Payment, already bool) *RefundResult {
	res := &RefundResult{
		PaymentID:       p.ID,
		BookingID:       p.BookingID,
		PaidMinor:       p.AmountMinor,
		GatewayRefundID: p.GatewayRefundID,
		AlreadyRefunded: already,
	}
	if p.RefundAmountMinor != nil {
		res.AmountMinor = *p.RefundAmountMinor
		res.FullRefund = *p.RefundAmountMinor == p.AmountMinor
	}
	if p.RefundedAt != nil {
		res.RefundedAt = *p.RefundedAt
	}
	return res
}
