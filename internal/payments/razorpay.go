package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/therapy-practice-api/internal/observability/metrics"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

var paymentsTracer = otel.Tracer("practice.internal.payments")

// RazorpayClient talks to the gateway's REST API with basic auth.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	metrics    *metrics.LifecycleMetrics
	logger     *logging.Logger
}

// NewRazorpayClient builds a client. timeout bounds every call.
func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration, m *metrics.LifecycleMetrics, logger *logging.Logger) *RazorpayClient {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RazorpayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		logger:     logger,
	}
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	ctx, span := paymentsTracer.Start(ctx, "gateway.create_order")
	defer span.End()
	span.SetAttributes(attribute.Int64("practice.amount_minor", req.AmountMinor))

	body := map[string]any{
		"amount":   req.AmountMinor,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}
	var parsed struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	}
	if err := c.do(ctx, "create_order", "/v1/orders", body, "", &parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if parsed.ID == "" {
		return nil, &GatewayError{Op: "create_order", Err: errors.New("missing order id in response")}
	}
	return &GatewayOrder{ID: parsed.ID, AmountMinor: parsed.Amount, Currency: parsed.Currency, Status: parsed.Status}, nil
}

func (c *RazorpayClient) Refund(ctx context.Context, req GatewayRefundRequest) (*GatewayRefund, error) {
	ctx, span := paymentsTracer.Start(ctx, "gateway.refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("practice.gateway_payment_id", req.GatewayPaymentID),
		attribute.Int64("practice.amount_minor", req.AmountMinor),
	)

	body := map[string]any{
		"amount":  req.AmountMinor,
		"receipt": req.IdempotencyKey,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}
	var parsed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := "/v1/payments/" + url.PathEscape(req.GatewayPaymentID) + "/refund"
	if err := c.do(ctx, "refund", path, body, req.IdempotencyKey, &parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if parsed.ID == "" {
		return nil, &GatewayError{Op: "refund", Err: errors.New("missing refund id in response")}
	}
	c.logger.Info("gateway refund accepted",
		"refund_id", parsed.ID,
		"gateway_payment_id", req.GatewayPaymentID,
		"status", parsed.Status,
		"amount_minor", req.AmountMinor,
	)
	return &GatewayRefund{ID: parsed.ID, Status: parsed.Status}, nil
}

func (c *RazorpayClient) do(ctx context.Context, op, path string, body any, idempotencyKey string, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("payments: %s marshal: %w", op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("payments: %s request: %w", op, err)
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.metrics.ObserveGatewayLatency(op, time.Since(start).Seconds())
	if err != nil {
		return &GatewayError{Op: op, Timeout: isTimeout(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("gateway call failed",
			"op", op,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(gatewayErrorDescription(respBody))}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &GatewayError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func gatewayErrorDescription(body []byte) string {
	var parsed struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Description != "" {
		return parsed.Error.Code + ": " + parsed.Error.Description
	}
	return strings.TrimSpace(string(body))
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
