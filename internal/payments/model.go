package payments

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the payment lifecycle state exchanged with clients.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// freeOrderPrefix marks orders settled without the gateway.
const freeOrderPrefix = "free_"

var (
	// ErrVerification is returned when a capture signature does not match. The
	// payment is left pending.
	ErrVerification = errors.New("payments: signature verification failed")

	// ErrNotFound is returned when no payment matches the reference.
	ErrNotFound = errors.New("payments: not found")

	// ErrAlreadyLinked is returned when an order is linked to another booking,
	// or the booking already has an effective payment.
	ErrAlreadyLinked = errors.New("payments: already linked to a different booking")

	// ErrInvalidAmount is returned for amounts that cannot be charged.
	ErrInvalidAmount = errors.New("payments: invalid amount")

	// ErrNotRefundable is returned when the payment is not in a refundable state.
	ErrNotRefundable = errors.New("payments: payment cannot be refunded")

	// ErrVelocityExceeded is returned when a customer creates too many orders.
	ErrVelocityExceeded = errors.New("payments: too many orders, try again later")
)

// StateError reports an operation attempted on a payment in the wrong state.
type StateError struct {
	PaymentID string
	Status    Status
	Op        string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("payments: cannot %s payment %s in status %s", e.Op, e.PaymentID, e.Status)
}

// Payment is one order at the gateway and its local lifecycle.
type Payment struct {
	ID                string         `json:"id"`
	BookingID         string         `json:"booking_id,omitempty"`
	GatewayOrderID    string         `json:"gateway_order_id"`
	GatewayPaymentID  string         `json:"gateway_payment_id,omitempty"`
	AmountMinor       int64          `json:"amount_minor"`
	Currency          string         `json:"currency"`
	Status            Status         `json:"status"`
	RefundAmountMinor *int64         `json:"refund_amount_minor,omitempty"`
	GatewayRefundID   string         `json:"gateway_refund_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	CapturedAt        *time.Time     `json:"captured_at,omitempty"`
	RefundedAt        *time.Time     `json:"refunded_at,omitempty"`
}

// IsFree reports whether the payment was settled without the gateway.
func (p *Payment) IsFree() bool {
	return strings.HasPrefix(p.GatewayOrderID, freeOrderPrefix)
}

// isFreeConsultation reports whether the payment settles the zero-amount
// consultation product rather than a discounted paid session.
func (p *Payment) isFreeConsultation() bool {
	free, _ := p.Metadata["free_consultation"].(bool)
	return free
}

func (p *Payment) couponCode() string {
	if p.Metadata == nil {
		return ""
	}
	code, _ := p.Metadata["coupon_code"].(string)
	return code
}

// OrderRequest is a checkout request.
type OrderRequest struct {
	AmountMinor      int64
	Currency         string
	CouponCode       string
	BookingID        string
	FreeConsultation bool
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	SessionType      string
}

// Order is what the client needs to open the gateway checkout. It never
// carries secret material.
type Order struct {
	PaymentID       string `json:"payment_id"`
	GatewayOrderID  string `json:"order_id"`
	AmountMinor     int64  `json:"amount"`
	BaseAmountMinor int64  `json:"base_amount"`
	DiscountMinor   int64  `json:"discount_amount"`
	Currency        string `json:"currency"`
	KeyID           string `json:"key_id,omitempty"`
	Status          Status `json:"status"`
}

// Ref identifies a payment to refund by booking or by gateway payment id.
type Ref struct {
	BookingID        string `json:"booking_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
}

// RefundResult is a completed refund.
type RefundResult struct {
	PaymentID       string    `json:"payment_id"`
	BookingID       string    `json:"booking_id,omitempty"`
	AmountMinor     int64     `json:"amount_minor"`
	PaidMinor       int64     `json:"paid_minor"`
	FullRefund      bool      `json:"full_refund"`
	GatewayRefundID string    `json:"gateway_refund_id,omitempty"`
	RefundedAt      time.Time `json:"refunded_at"`
	AlreadyRefunded bool      `json:"already_refunded,omitempty"`
}
