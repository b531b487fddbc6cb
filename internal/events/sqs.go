package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueueHandler forwards outbox entries to an SQS queue watched by the
// reconciliation tooling.
type QueueHandler struct {
	client   sqsSender
	queueURL string
}

// NewQueueHandler wraps an SQS client.
func NewQueueHandler(client *sqs.Client, queueURL string) *QueueHandler {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	return newQueueHandler(client, queueURL)
}

func newQueueHandler(client sqsSender, queueURL string) *QueueHandler {
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &QueueHandler{client: client, queueURL: queueURL}
}

func (q *QueueHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"event_id":   {DataType: aws.String("String"), StringValue: aws.String(entry.ID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// LogHandler writes entries to the log. Used when no queue is configured so
// reconciliation flags still leave a trace.
type LogHandler struct {
	logger *logging.Logger
}

func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	args := []any{"event_id", entry.ID, "type", entry.Type, "payload", string(entry.Payload)}
	if entry.Type == TypeReconciliationRequired {
		h.logger.Warn("reconciliation required", args...)
		return nil
	}
	h.logger.Info("outbox event", args...)
	return nil
}
