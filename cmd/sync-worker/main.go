// Package main is the entry point for the sync worker Lambda.
//
// SQS invokes it with batches of sync requests enqueued by the operator API.
// Each message names one organization whose job table must be recomputed from
// the current directory state. Failed messages are reported as partial batch
// failures so SQS redrives only those, not the whole batch.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"stagecall/internal/config"
	"stagecall/internal/db"
	"stagecall/internal/scheduler"
	"stagecall/internal/telemetry"
	"stagecall/internal/timeutil"
	"stagecall/internal/types"
)

type syncApp struct {
	builder *scheduler.Builder
	metrics *telemetry.DispatchMetrics
	logger  *slog.Logger
}

func (app *syncApp) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure

	for _, record := range event.Records {
		if err := app.processRecord(ctx, record); err != nil {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func (app *syncApp) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg types.SyncMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// A body that never parses would redrive forever; log and drop it.
		app.logger.ErrorContext(ctx, "dropping malformed sync message",
			slog.String("message_id", record.MessageId),
			slog.Any("error", err),
		)
		return nil
	}

	if msg.TraceID != "" {
		ctx = types.WithRequestID(ctx, msg.TraceID)
	}
	if !msg.RequestedAt.IsZero() {
		app.metrics.RecordQueueLag(ctx, time.Since(msg.RequestedAt))
	}

	report, err := app.builder.SyncOrganization(ctx, msg.OrganizationID)
	if err != nil {
		app.logger.ErrorContext(ctx, "sync failed",
			slog.String("organization_id", msg.OrganizationID),
			slog.String("reason", msg.Reason),
			slog.Any("error", err),
		)
		return err
	}

	app.logger.InfoContext(ctx, "sync completed",
		slog.String("organization_id", msg.OrganizationID),
		slog.String("reason", msg.Reason),
		slog.Int("scanned", report.Scanned),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int64("duration_ms", report.DurationMS),
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("sync worker initializing")

	ctx := context.Background()

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	policy, err := timeutil.NewPolicy(cfg.Scheduler.Timezone)
	if err != nil {
		logger.Error("failed to load scheduler timezone", "error", err)
		os.Exit(1)
	}

	app := &syncApp{
		builder: scheduler.NewBuilder(scheduler.BuilderConfig{
			Jobs:      db.NewJobRepository(pool),
			Directory: db.NewDirectoryRepository(pool),
			Settings:  db.NewSettingsRepository(pool),
			Policy:    policy,
			Logger:    logger,
		}),
		metrics: telemetry.NewDispatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger),
		logger:  logger,
	}

	logger.Info("sync worker initialized", "environment", cfg.Environment)
	lambda.Start(app.handle)
}
