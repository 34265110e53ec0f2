// Package telemetry emits delivery-engine metrics to CloudWatch. Emission is
// best effort: a metrics outage never fails a dispatch cycle.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"stagecall/internal/types"
)

// MetricNamespace is the CloudWatch namespace all engine metrics live in.
const MetricNamespace = "StageCall/Delivery"

// Metric and dimension names.
const (
	metricDispatchCycle = "DispatchCycle"
	metricMessagesSent  = "MessagesSent"
	metricSendFailures  = "SendFailures"
	metricBlockedJobs   = "BlockedJobs"
	metricCycleDuration = "DispatchCycleDuration"

	dimOrganization = "Organization"
	dimRunStatus    = "RunStatus"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability. Production code uses *cloudwatch.Client from aws-sdk-go-v2.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// DispatchMetrics publishes per-cycle delivery metrics.
type DispatchMetrics struct {
	client CloudWatchClient
	logger *slog.Logger
}

// NewDispatchMetrics creates a DispatchMetrics publisher.
func NewDispatchMetrics(client CloudWatchClient, logger *slog.Logger) *DispatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchMetrics{client: client, logger: logger}
}

// RecordCycle emits one batch of metrics for a completed dispatch cycle.
func (m *DispatchMetrics) RecordCycle(ctx context.Context, report *types.DispatchReport) {
	orgDim := cwtypes.Dimension{
		Name:  aws.String(dimOrganization),
		Value: aws.String(report.OrganizationID),
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(MetricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDispatchCycle),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					orgDim,
					{Name: aws.String(dimRunStatus), Value: aws.String(string(report.Status))},
				},
			},
			{
				MetricName: aws.String(metricMessagesSent),
				Value:      aws.Float64(float64(report.Sent)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{orgDim},
			},
			{
				MetricName: aws.String(metricSendFailures),
				Value:      aws.Float64(float64(report.Failed)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{orgDim},
			},
			{
				MetricName: aws.String(metricBlockedJobs),
				Value:      aws.Float64(float64(report.Blocked)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{orgDim},
			},
			{
				MetricName: aws.String(metricCycleDuration),
				Value:      aws.Float64(float64(report.DurationMS)),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{orgDim},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish dispatch metrics",
			"organization_id", report.OrganizationID,
			"error", err,
		)
	}
}

// RecordQueueLag emits the delay between a sync message's enqueue time and
// the start of its processing by the worker.
func (m *DispatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(MetricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("SyncQueueLag"),
				Value:      aws.Float64(float64(lag.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish queue lag metric",
			"lag_ms", lag.Milliseconds(),
			"error", err,
		)
	}
}
