package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"stagecall/internal/types"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.eu-central-1.amazonaws.com/123456789/stagecall-sync"

func TestTriggerSync_SendsMessage(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := NewSyncTrigger(mock, testQueueURL, nil)

	before := time.Now().UTC()
	if err := trigger.TriggerSync(context.Background(), "org_1", "settings_changed"); err != nil {
		t.Fatalf("TriggerSync returned unexpected error: %v", err)
	}
	after := time.Now().UTC()

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}
	call := mock.calls[0]
	if *call.QueueUrl != testQueueURL {
		t.Errorf("expected queue URL %q, got %q", testQueueURL, *call.QueueUrl)
	}

	var msg types.SyncMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if msg.OrganizationID != "org_1" {
		t.Errorf("expected organization org_1, got %q", msg.OrganizationID)
	}
	if msg.Reason != "settings_changed" {
		t.Errorf("expected reason settings_changed, got %q", msg.Reason)
	}
	if msg.TraceID == "" {
		t.Error("expected non-empty trace ID")
	}
	if msg.RequestedAt.Before(before) || msg.RequestedAt.After(after) {
		t.Errorf("RequestedAt %v not in expected range [%v, %v]", msg.RequestedAt, before, after)
	}
}

func TestTriggerSync_SetsReasonMessageAttribute(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := NewSyncTrigger(mock, testQueueURL, nil)

	if err := trigger.TriggerSync(context.Background(), "org_1", "manual_resync"); err != nil {
		t.Fatalf("TriggerSync returned unexpected error: %v", err)
	}

	attr, ok := mock.calls[0].MessageAttributes["reason"]
	if !ok {
		t.Fatal("expected 'reason' message attribute to be set")
	}
	if *attr.StringValue != "manual_resync" {
		t.Errorf("expected reason attribute manual_resync, got %q", *attr.StringValue)
	}
	if *attr.DataType != "String" {
		t.Errorf("expected DataType 'String', got %q", *attr.DataType)
	}
}

func TestTriggerSync_ReusesRequestTraceID(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := NewSyncTrigger(mock, testQueueURL, nil)

	ctx := types.WithRequestID(context.Background(), "req_abc")
	if err := trigger.TriggerSync(ctx, "org_1", "settings_changed"); err != nil {
		t.Fatalf("TriggerSync returned unexpected error: %v", err)
	}

	var msg types.SyncMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if msg.TraceID != "req_abc" {
		t.Errorf("expected trace ID req_abc, got %q", msg.TraceID)
	}
}

func TestTriggerSync_SQSError(t *testing.T) {
	mock := &mockSQSSender{err: fmt.Errorf("access denied")}
	trigger := NewSyncTrigger(mock, testQueueURL, nil)

	err := trigger.TriggerSync(context.Background(), "org_1", "settings_changed")
	if err == nil {
		t.Fatal("expected error from TriggerSync, got nil")
	}
	if !strings.Contains(err.Error(), "failed to send sync message") {
		t.Errorf("expected error to mention send failure, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), testQueueURL) {
		t.Errorf("expected error to contain queue URL, got %q", err.Error())
	}
}
