package payments

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is the external payment processor.
type Gateway interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
	Refund(ctx context.Context, req GatewayRefundRequest) (*GatewayRefund, error)
}

type GatewayOrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type GatewayOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Status      string
}

type GatewayRefundRequest struct {
	GatewayPaymentID string
	AmountMinor      int64
	IdempotencyKey   string
	Notes            map[string]string
}

type GatewayRefund struct {
	ID     string
	Status string
}

// GatewayError wraps a failed or timed-out gateway call. A timeout is a
// failure: the caller must not assume the call took effect.
type GatewayError struct {
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("payments: gateway %s timed out: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("payments: gateway %s status %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("payments: gateway %s: %v", e.Op, e.Err)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayTimeout reports whether err is a timed-out gateway call.
func IsGatewayTimeout(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Timeout
}
