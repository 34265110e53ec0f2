// Package main is the entry point for the dispatch Lambda.
//
// EventBridge invokes it on a fixed schedule. Each invocation fans out over
// every organization with an enabled scheduler, runs one dispatch cycle per
// organization with bounded concurrency, and emits CloudWatch metrics for
// each cycle. One organization's failure never stops the others; the
// invocation fails only when every cycle failed, so EventBridge retry does
// not re-send messages for organizations that already completed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"stagecall/internal/config"
	"stagecall/internal/conversation"
	"stagecall/internal/db"
	"stagecall/internal/messaging"
	"stagecall/internal/scheduler"
	"stagecall/internal/telemetry"
)

// maxConcurrentOrgs bounds the dispatch fan-out so one invocation cannot
// exhaust the database pool.
const maxConcurrentOrgs = 4

type dispatchApp struct {
	settings   *db.SettingsRepository
	dispatcher *scheduler.Dispatcher
	metrics    *telemetry.DispatchMetrics
	logger     *slog.Logger
}

func (app *dispatchApp) handle(ctx context.Context) error {
	orgIDs, err := app.settings.ListEnabledOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("listing organizations: %w", err)
	}
	if len(orgIDs) == 0 {
		app.logger.InfoContext(ctx, "no enabled organizations, nothing to dispatch")
		return nil
	}

	var failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOrgs)
	for _, orgID := range orgIDs {
		g.Go(func() error {
			report, err := app.dispatcher.RunOnce(gctx, orgID)
			if err != nil {
				failures.Add(1)
				app.logger.ErrorContext(gctx, "dispatch cycle failed",
					slog.String("organization_id", orgID),
					slog.Any("error", err),
				)
				// Returning the error would cancel sibling cycles.
				return nil
			}
			app.metrics.RecordCycle(gctx, report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if n := failures.Load(); n == int64(len(orgIDs)) {
		return fmt.Errorf("all %d dispatch cycles failed", n)
	}
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("dispatch lambda initializing")

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

	templates, err := messaging.ParseTemplateMap(cfg.Messaging.Templates)
	if err != nil {
		logger.Error("failed to parse template map", "error", err)
		os.Exit(1)
	}

	jobRepo := db.NewJobRepository(pool)
	settingsRepo := db.NewSettingsRepository(pool)
	heartbeatRepo := db.NewHeartbeatRepository(pool)
	directoryRepo := db.NewDirectoryRepository(pool)
	conversationRepo := db.NewConversationRepository(pool)

	waClient := messaging.NewClient(messaging.ClientConfig{
		BaseURL:    cfg.Messaging.BaseURL,
		AuthToken:  cfg.Messaging.AuthToken,
		FromNumber: cfg.Messaging.FromNumber,
	})
	promptSvc := conversation.NewPromptService(waClient, conversationRepo, logger)

	app := &dispatchApp{
		settings: settingsRepo,
		dispatcher: scheduler.NewDispatcher(scheduler.DispatcherConfig{
			Jobs:       jobRepo,
			Directory:  directoryRepo,
			Heartbeats: heartbeatRepo,
			Sender:     promptSvc,
			Templates:  templates,
			Logger:     logger,
		}),
		metrics: telemetry.NewDispatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger),
		logger:  logger,
	}

	logger.Info("dispatch lambda initialized", "environment", cfg.Environment)
	lambda.Start(app.handle)
}
