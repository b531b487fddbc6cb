package bootstrap

import (
	"fmt"
	"strings"

	appconfig "github.com/wolfman30/therapy-practice-api/internal/config"
	"github.com/wolfman30/therapy-practice-api/internal/observability/metrics"
	"github.com/wolfman30/therapy-practice-api/internal/payments"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// BuildGateway returns the Razorpay client, or the in-process fake when fake
// payments are allowed and no keys are configured.
func BuildGateway(cfg *appconfig.Config, m *metrics.LifecycleMetrics, logger *logging.Logger) (payments.Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	keyID := strings.TrimSpace(cfg.GatewayKeyID)
	keySecret := strings.TrimSpace(cfg.GatewayKeySecret)
	if keyID == "" || keySecret == "" {
		if !cfg.AllowFakePayments {
			return nil, fmt.Errorf("bootstrap: GATEWAY_KEY_ID and GATEWAY_KEY_SECRET are required")
		}
		logger.Warn("payment gateway keys missing; using fake gateway")
		return payments.NewFakeGateway(logger), nil
	}
	return payments.NewRazorpayClient(cfg.GatewayBaseURL, keyID, keySecret, cfg.GatewayTimeout, m, logger), nil
}
