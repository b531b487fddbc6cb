package events

import "time"

// Outbox event types.
const (
	TypeReconciliationRequired = "refund.reconciliation_required.v1"
	TypePaymentCaptured        = "payment.captured.v1"
	TypeRefundIssued           = "payment.refunded.v1"
)

// ReconciliationRequiredV1 flags a booking whose payment state needs a human:
// a cancellation whose refund failed, or a capture for a booking that can no
// longer be confirmed.
type ReconciliationRequiredV1 struct {
	BookingID  string    `json:"booking_id"`
	PaymentID  string    `json:"payment_id,omitempty"`
	Status     string    `json:"booking_status"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentCapturedV1 is recorded once a gateway signature has been verified.
type PaymentCapturedV1 struct {
	PaymentID        string    `json:"payment_id"`
	BookingID        string    `json:"booking_id,omitempty"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	AmountMinor      int64     `json:"amount_minor"`
	Currency         string    `json:"currency"`
	CapturedAt       time.Time `json:"captured_at"`
}

// RefundIssuedV1 is recorded after the gateway accepted a refund.
type RefundIssuedV1 struct {
	PaymentID       string    `json:"payment_id"`
	BookingID       string    `json:"booking_id,omitempty"`
	AmountMinor     int64     `json:"amount_minor"`
	FullRefund      bool      `json:"full_refund"`
	GatewayRefundID string    `json:"gateway_refund_id"`
	RefundedAt      time.Time `json:"refunded_at"`
}
