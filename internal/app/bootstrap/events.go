package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/therapy-practice-api/internal/config"
	"github.com/wolfman30/therapy-practice-api/internal/events"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// BuildDeliveryHandler picks where outbox events go: the SQS reconciliation
// queue when one is configured, otherwise the structured log.
func BuildDeliveryHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.DeliveryHandler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	queueURL := strings.TrimSpace(cfg.ReconciliationQueueURL)
	if queueURL == "" {
		logger.Info("reconciliation queue not configured; outbox events will be logged")
		return events.NewLogHandler(logger), nil
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	logger.Info("outbox events routed to sqs", "queue_url", queueURL)
	return events.NewQueueHandler(client, queueURL), nil
}
