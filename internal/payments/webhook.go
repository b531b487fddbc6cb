package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/therapy-practice-api/internal/events"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error)
}

type webhookCapturer interface {
	CaptureFromWebhook(ctx context.Context, orderID, gatewayPaymentID string, amountMinor int64) (*Payment, error)
	MarkFailed(ctx context.Context, orderID string) (*Payment, error)
}

// WebhookHandler handles gateway payment notifications.
type WebhookHandler struct {
	webhookSecret string
	tracker       webhookCapturer
	processed     processedTracker
	logger        *logging.Logger
}

// NewWebhookHandler creates a handler for gateway webhooks.
func NewWebhookHandler(webhookSecret string, tracker webhookCapturer, processed processedTracker, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		webhookSecret: webhookSecret,
		tracker:       tracker,
		processed:     processed,
		logger:        logger,
	}
}

type gatewayWebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Handle processes a gateway webhook. Events we cannot act on are
// acknowledged so the gateway stops retrying; storage errors are not.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !VerifyWebhookSignature(h.webhookSecret, payload, r.Header.Get("X-Razorpay-Signature")) {
		h.logger.Warn("gateway webhook signature mismatch", "remote_addr", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt gatewayWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode gateway event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	eventID := r.Header.Get("X-Razorpay-Event-Id")
	if eventID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.processed != nil {
		if done, err := h.processed.AlreadyProcessed(ctx, events.ProviderGateway, eventID); err != nil {
			h.logger.Error("processed lookup failed", "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		} else if done {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	entity := evt.Payload.Payment.Entity
	switch evt.Event {
	case "payment.captured", "order.paid":
		_, err = h.tracker.CaptureFromWebhook(ctx, entity.OrderID, entity.ID, entity.Amount)
	case "payment.failed":
		_, err = h.tracker.MarkFailed(ctx, entity.OrderID)
	default:
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil && !acknowledgeable(err) {
		h.logger.Error("gateway webhook processing failed", "event", evt.Event, "event_id", eventID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if err != nil {
		h.logger.Warn("gateway webhook ignored", "event", evt.Event, "event_id", eventID, "order_id", entity.OrderID, "error", err)
	}

	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(ctx, events.ProviderGateway, eventID, evt.Event); err != nil {
			h.logger.Error("failed to mark gateway event processed", "event_id", eventID, "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func acknowledgeable(err error) bool {
	var stateErr *StateError
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidAmount) || errors.As(err, &stateErr)
}
