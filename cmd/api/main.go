// Package main is the entry point for the StageCall operator API.
//
// It loads configuration (env, dotenv, SSM), opens the pgx connection pool,
// builds the delivery services, and serves the chi router over HTTP with
// graceful shutdown on SIGINT/SIGTERM. The dispatch and sync cycles run in
// their own Lambda entry points (cmd/dispatcher, cmd/sync-worker); this
// process only exposes the operator surface and the synchronous internal
// run endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stagecall/internal/api/handlers"
	"stagecall/internal/config"
	"stagecall/internal/conversation"
	"stagecall/internal/core"
	"stagecall/internal/db"
	"stagecall/internal/messaging"
	"stagecall/internal/queue"
	"stagecall/internal/scheduler"
	"stagecall/internal/timeutil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("stagecall API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)

	templates, err := messaging.ParseTemplateMap(cfg.Messaging.Templates)
	if err != nil {
		return fmt.Errorf("parsing template map: %w", err)
	}

	policy, err := timeutil.NewPolicy(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("loading scheduler timezone: %w", err)
	}

	// Repositories.
	jobRepo := db.NewJobRepository(pool)
	settingsRepo := db.NewSettingsRepository(pool)
	heartbeatRepo := db.NewHeartbeatRepository(pool)
	directoryRepo := db.NewDirectoryRepository(pool)
	conversationRepo := db.NewConversationRepository(pool)

	// Provider client and conversation services.
	waClient := messaging.NewClient(messaging.ClientConfig{
		BaseURL:    cfg.Messaging.BaseURL,
		AuthToken:  cfg.Messaging.AuthToken,
		FromNumber: cfg.Messaging.FromNumber,
	})
	promptSvc := conversation.NewPromptService(waClient, conversationRepo, logger)
	guard := conversation.NewGuard(conversationRepo, waClient, waClient, logger)

	// Delivery services.
	builder := scheduler.NewBuilder(scheduler.BuilderConfig{
		Jobs:      jobRepo,
		Directory: directoryRepo,
		Settings:  settingsRepo,
		Policy:    policy,
		Logger:    logger,
	})
	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Jobs:       jobRepo,
		Directory:  directoryRepo,
		Heartbeats: heartbeatRepo,
		Sender:     promptSvc,
		Templates:  templates,
		Logger:     logger,
	})

	var archiver scheduler.JobArchiver
	if cfg.AWS.ArchiveBucket != "" {
		archiver = scheduler.NewS3JobArchiver(s3Client, cfg.AWS.ArchiveBucket)
	}
	maintenance := scheduler.NewMaintenanceService(scheduler.MaintenanceConfig{
		Jobs:     jobRepo,
		Archiver: archiver,
		Logger:   logger,
	})

	syncTrigger := queue.NewSyncTrigger(sqsClient, cfg.AWS.SyncQueueURL, logger)

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.OnShutdown(func(context.Context) error {
		pool.Close()
		return nil
	})
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool}}

	jobsHandler := handlers.NewJobsHandler(jobRepo, dispatcher, maintenance, srv.Validator, nil, logger)
	syncHandler := handlers.NewSyncHandler(settingsRepo, syncTrigger, heartbeatRepo, srv.Validator, nil, logger)
	runHandler := handlers.NewRunHandler(dispatcher, builder, logger)
	webhookHandler := handlers.NewWebhookHandler(guard, nil, logger)

	adminAuth := core.BearerAuth(cfg.Security.AdminAPIKey)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(adminAuth)
				jobsHandler.RegisterRoutes(r)
				syncHandler.RegisterRoutes(r)
				webhookHandler.RegisterRoutes(r)
			})
		},
		runHandler.RegisterRoutes(cfg.Scheduler.RunToken),
	)

	srv.MountRoutes()

	return serveHTTP(srv, cfg, logger)
}

// dbProbe reports database connectivity for the /health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func serveHTTP(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return srv.Shutdown(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
