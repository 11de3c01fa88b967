package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

type sqsSendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher forwards outbox envelopes to an SQS queue.
type SQSPublisher struct {
	client   sqsSendAPI
	queueURL string
	fifo     bool
}

// NewSQSPublisher wraps client. FIFO queues are detected from the URL suffix
// and get the aggregate as message group.
func NewSQSPublisher(client sqsSendAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

func (p *SQSPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.EventType)},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(entry.Aggregate)
		input.MessageDeduplicationId = aws.String(entry.ID.String())
	}
	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// LogHandler is the delivery handler used when no queue is configured.
type LogHandler struct {
	Logger *logging.Logger
}

func (h LogHandler) Handle(_ context.Context, entry OutboxEntry) error {
	if h.Logger != nil {
		h.Logger.Info("outbox event", "event_id", entry.ID, "type", entry.EventType, "aggregate", entry.Aggregate)
	}
	return nil
}
