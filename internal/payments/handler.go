package payments

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wolfman30/therapy-practice-api/internal/bookings"
	"github.com/wolfman30/therapy-practice-api/internal/coupons"
	"github.com/wolfman30/therapy-practice-api/internal/http/apiutil"
	"github.com/wolfman30/therapy-practice-api/internal/identity"
	"github.com/wolfman30/therapy-practice-api/internal/refunds"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type paymentOps interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	VerifyAndCapture(ctx context.Context, orderID, gatewayPaymentID, signature string) (*Payment, error)
	LinkToBooking(ctx context.Context, orderID, bookingID string) (*Payment, error)
	Refund(ctx context.Context, ref Ref, requestedAt time.Time) (*RefundResult, error)
}

type consentChecker interface {
	HasConsent(ctx context.Context, email string, sessionType bookings.SessionType, at time.Time) (bool, error)
}

type auditLogger interface {
	LogAdminOverride(ctx context.Context, actor identity.Actor, action, subjectType, subjectID string, details any) error
}

// Handler exposes the payment tracker over HTTP.
type Handler struct {
	tracker paymentOps
	consent consentChecker
	audit   auditLogger
	now     func() time.Time
	logger  *logging.Logger
}

// NewHandler builds a Handler. A nil consent checker disables the consent
// gate on checkout.
func NewHandler(tracker paymentOps, consent consentChecker, audit auditLogger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{tracker: tracker, consent: consent, audit: audit, now: time.Now, logger: logger}
}

type createOrderRequest struct {
	AmountMinor      int64  `json:"amount" validate:"gte=0"`
	Currency         string `json:"currency" validate:"omitempty,len=3,alpha"`
	CouponCode       string `json:"coupon_code" validate:"max=64"`
	BookingID        string `json:"booking_id" validate:"omitempty,uuid"`
	FreeConsultation bool   `json:"free_consultation"`
	CustomerName     string `json:"customer_name" validate:"max=200"`
	CustomerEmail    string `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone    string `json:"customer_phone" validate:"max=32"`
	SessionType      string `json:"session_type" validate:"omitempty,oneof=individual couples family"`
}

type verifyRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required,hexadecimal"`
}

type linkRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	BookingID string `json:"booking_id" validate:"required,uuid"`
}

type refundRequest struct {
	BookingID        string `json:"booking_id" validate:"omitempty,uuid"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required_without=BookingID"`
}

// CreateOrder handles POST /api/payments/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if !req.FreeConsultation && !h.hasConsent(w, r, req.CustomerEmail, req.SessionType) {
		return
	}
	order, err := h.tracker.CreateOrder(r.Context(), OrderRequest{
		AmountMinor:      req.AmountMinor,
		Currency:         req.Currency,
		CouponCode:       req.CouponCode,
		BookingID:        req.BookingID,
		FreeConsultation: req.FreeConsultation,
		CustomerName:     req.CustomerName,
		CustomerEmail:    req.CustomerEmail,
		CustomerPhone:    req.CustomerPhone,
		SessionType:      req.SessionType,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusCreated, order)
}

// hasConsent gates paid checkouts that name a customer and session type on a
// recorded consent. Callers that omit either are not gated.
func (h *Handler) hasConsent(w http.ResponseWriter, r *http.Request, email, sessionType string) bool {
	if h.consent == nil || email == "" || sessionType == "" {
		return true
	}
	ok, err := h.consent.HasConsent(r.Context(), email, bookings.SessionType(sessionType), h.now())
	if err != nil {
		h.logger.Error("consent lookup failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if !ok {
		apiutil.WriteError(w, http.StatusPreconditionRequired, "consent required before payment")
		return false
	}
	return true
}

// Verify handles POST /api/payments/verify. The client's success callback is
// advisory; only the signature check marks a payment paid.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.tracker.VerifyAndCapture(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		h.writeError(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, p)
}

// Link handles POST /api/payments/link.
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.tracker.LinkToBooking(r.Context(), req.OrderID, req.BookingID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, p)
}

// AdminRefund handles POST /admin/payments/refund.
func (h *Handler) AdminRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	actor := identity.FromContext(r.Context())
	res, err := h.tracker.Refund(r.Context(), Ref{BookingID: req.BookingID, GatewayPaymentID: req.GatewayPaymentID}, h.now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.audit != nil && !res.AlreadyRefunded {
		if err := h.audit.LogAdminOverride(r.Context(), actor, "payment.refunded", "payment", res.PaymentID, res); err != nil {
			h.logger.Error("failed to audit refund", "payment_id", res.PaymentID, "error", err)
		}
	}
	apiutil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		couponErr *coupons.InvalidError
		stateErr  *StateError
		gwErr     *GatewayError
	)
	switch {
	case errors.Is(err, ErrVerification):
		apiutil.WriteError(w, http.StatusPaymentRequired, "payment verification failed")
	case errors.As(err, &couponErr):
		apiutil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "coupon not applicable",
			"code":   couponErr.Code,
			"reason": string(couponErr.Reason),
		})
	case errors.Is(err, ErrAlreadyLinked):
		apiutil.WriteError(w, http.StatusConflict, "payment already linked to a different booking")
	case errors.As(err, &stateErr):
		apiutil.WriteError(w, http.StatusConflict, stateErr.Error())
	case errors.Is(err, refunds.ErrPolicyUndefined):
		apiutil.WriteError(w, http.StatusUnprocessableEntity, "session has already started; refund requires manual handling")
	case errors.Is(err, ErrNotRefundable):
		apiutil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidAmount):
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrVelocityExceeded):
		apiutil.WriteError(w, http.StatusTooManyRequests, "too many orders, try again later")
	case errors.Is(err, ErrNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "payment not found")
	case errors.Is(err, bookings.ErrNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "booking not found")
	case errors.As(err, &gwErr):
		h.logger.Error("payment gateway call failed", "error", err)
		if gwErr.Timeout {
			apiutil.WriteError(w, http.StatusGatewayTimeout, "payment gateway timed out")
			return
		}
		apiutil.WriteError(w, http.StatusBadGateway, "payment gateway error")
	default:
		h.logger.Error("payment request failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
