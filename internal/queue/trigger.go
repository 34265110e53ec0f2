// Package queue provides the SQS producer that asks the sync worker to run a
// recompute pass for one organization.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"stagecall/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SyncTrigger enqueues recompute requests. API handlers call it whenever an
// operator changes settings or asks for an explicit resync; the sync worker
// consumes the queue and runs the builder.
type SyncTrigger struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewSyncTrigger creates a SyncTrigger sending to the given queue URL.
func NewSyncTrigger(client SQSSender, queueURL string, logger *slog.Logger) *SyncTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncTrigger{
		client:   client,
		queueURL: queueURL,
		clock:    types.RealClock{},
		logger:   logger,
	}
}

// TriggerSync enqueues one recompute request for the organization. The reason
// travels both in the payload and as a message attribute so it is visible in
// the queue console without opening the body.
func (t *SyncTrigger) TriggerSync(ctx context.Context, orgID, reason string) error {
	msg := types.SyncMessage{
		OrganizationID: orgID,
		TraceID:        traceIDFrom(ctx),
		Reason:         reason,
		RequestedAt:    t.clock.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal sync message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send sync message to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "sync message sent",
		"queue_url", t.queueURL,
		"organization_id", orgID,
		"trace_id", msg.TraceID,
		"reason", reason,
	)
	return nil
}

// traceIDFrom reuses the request's trace ID when one is in flight so the
// worker's logs correlate with the API call that triggered it.
func traceIDFrom(ctx context.Context) string {
	if id := types.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}
