package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher fans audit records out to an SQS queue for downstream analytics.
// Delivery is best effort; the pipeline never waits on or retries a publish.
type Publisher struct {
	client   sqsAPI
	queueURL string
	logger   *logging.Logger
}

// NewPublisher builds an SQS publisher. A nil client or empty queue URL
// yields a nil publisher whose Publish is a no-op.
func NewPublisher(client sqsAPI, queueURL string, logger *logging.Logger) *Publisher {
	if client == nil || queueURL == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{client: client, queueURL: queueURL, logger: logger.Component("history_publisher")}
}

// Publish sends one record to the queue.
func (p *Publisher) Publish(ctx context.Context, rec Record) error {
	if p == nil || p.client == nil {
		return nil
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: marshal outcome event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("history: publish outcome event: %w", err)
	}
	return nil
}
