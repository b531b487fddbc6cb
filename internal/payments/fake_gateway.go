package payments

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// FakeGateway is a dev/demo gateway that accepts every order and refund
// without network calls. Checkouts against it are signed with SignPayment
// using the configured key secret.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and never enabled
// in production.
type FakeGateway struct {
	logger  *logging.Logger
	refunds atomic.Int64
}

func NewFakeGateway(logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{logger: logger}
}

func (g *FakeGateway) CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	_ = ctx
	if req.AmountMinor <= 0 {
		return nil, &GatewayError{Op: "create_order", StatusCode: 400, Err: fmt.Errorf("amount must be positive")}
	}
	id := "order_fake_" + uuid.NewString()[:12]
	g.logger.Info("fake gateway order created", "order_id", id, "amount_minor", req.AmountMinor)
	return &GatewayOrder{ID: id, AmountMinor: req.AmountMinor, Currency: req.Currency, Status: "created"}, nil
}

func (g *FakeGateway) Refund(ctx context.Context, req GatewayRefundRequest) (*GatewayRefund, error) {
	_ = ctx
	if req.GatewayPaymentID == "" {
		return nil, &GatewayError{Op: "refund", StatusCode: 400, Err: fmt.Errorf("payment id required")}
	}
	n := g.refunds.Add(1)
	id := fmt.Sprintf("rfnd_fake_%d", n)
	g.logger.Info("fake gateway refund issued", "refund_id", id, "gateway_payment_id", req.GatewayPaymentID, "amount_minor", req.AmountMinor)
	return &GatewayRefund{ID: id, Status: "processed"}, nil
}
