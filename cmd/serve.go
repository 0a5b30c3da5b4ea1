package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/leadflow/internal/analytics"
	"github.com/nextlevelbuilder/leadflow/internal/bus"
	"github.com/nextlevelbuilder/leadflow/internal/campaign"
	"github.com/nextlevelbuilder/leadflow/internal/channel"
	"github.com/nextlevelbuilder/leadflow/internal/config"
	"github.com/nextlevelbuilder/leadflow/internal/contact"
	"github.com/nextlevelbuilder/leadflow/internal/extract"
	"github.com/nextlevelbuilder/leadflow/internal/handover"
	"github.com/nextlevelbuilder/leadflow/internal/knowledge"
	"github.com/nextlevelbuilder/leadflow/internal/llm"
	"github.com/nextlevelbuilder/leadflow/internal/pipeline"
	"github.com/nextlevelbuilder/leadflow/internal/qualify"
	"github.com/nextlevelbuilder/leadflow/internal/respond"
	"github.com/nextlevelbuilder/leadflow/internal/scheduler"
	"github.com/nextlevelbuilder/leadflow/internal/store/pg"
	"github.com/nextlevelbuilder/leadflow/internal/tracing"
	"github.com/nextlevelbuilder/leadflow/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and workers",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	// .env is a developer convenience; real deployments set env directly.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL environment variable is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry.Enabled, cfg.Telemetry.Service)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	stores, err := pg.NewPGStores(ctx, pg.Config{
		DSN:           cfg.Database.DSN,
		EncryptionKey: cfg.Database.EncryptionKey,
		EmbeddingDim:  cfg.Database.EmbeddingDim,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	limiter := channel.NewTenantLimiter(cfg.RateLimit.MessagesPerMinute, cfg.RateLimit.MessagesPerHour)
	gateway := channel.NewClient(cfg.Channel.BaseURL, cfg.Channel.APIToken,
		time.Duration(cfg.Channel.TimeoutSec)*time.Second, limiter, logger)

	llmClient := llm.NewClient(llm.Config{
		DefaultAPIKey:  cfg.LLM.DefaultAPIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		ChatTimeout:    time.Duration(cfg.LLM.ChatTimeoutSec) * time.Second,
		EmbedTimeout:   time.Duration(cfg.LLM.EmbedTimeoutSec) * time.Second,
		KeyCacheTTL:    cfg.LLM.KeyCacheTTL,
	}, stores.APIKeys, logger)

	kb := knowledge.NewService(stores.Knowledge, llmClient, logger)
	contacts := contact.NewService(stores.Contacts, logger)
	extractor := extract.NewAgent(llmClient, logger)
	classifier := handover.NewClassifier(llmClient, logger)
	qualifier := qualify.NewQualifier(llmClient,
		time.Duration(cfg.Qualify.CooldownHours)*time.Hour, logger)

	sink := analytics.NewSink(stores.Analytics, cfg.Analytics.QueueSize,
		time.Duration(cfg.Analytics.SessionWindowMin)*time.Minute, logger)
	sink.Start(ctx)

	rollup := analytics.NewRollupWorker(stores.Analytics,
		time.Duration(cfg.Analytics.RollupIntervalMin)*time.Minute, logger)
	go rollup.Run(ctx)

	responder := respond.NewHandler(kb, llmClient, sink, cfg.Qualify.DiscoveryCallURL, logger)

	dedupe := bus.NewDedupeCache(
		time.Duration(cfg.Pipeline.DedupeTTLMin)*time.Minute, cfg.Pipeline.DedupeMax)

	proc := pipeline.New(pipeline.Config{
		QueueSize: cfg.Pipeline.QueueSize,
		Workers:   cfg.Pipeline.Workers,
		Budget:    time.Duration(cfg.Pipeline.BudgetSec) * time.Second,
	}, contacts, pipeline.Stores{
		Conversations: stores.Conversations,
		Messages:      stores.Messages,
	}, extractor, classifier, qualifier, responder, gateway, dedupe, sink, logger)
	proc.Start(ctx)

	if cfg.Scheduler.Enabled {
		stages := make([]time.Duration, 0, len(cfg.Scheduler.RescueStagesMin))
		for _, m := range cfg.Scheduler.RescueStagesMin {
			stages = append(stages, time.Duration(m)*time.Minute)
		}
		worker := scheduler.NewWorker(scheduler.Config{
			Interval:       time.Duration(cfg.Scheduler.IntervalSec) * time.Second,
			RescueInterval: time.Duration(cfg.Scheduler.RescueIntervalSec) * time.Second,
			RescueStages:   stages,
			RescueTimeout:  time.Duration(cfg.Scheduler.RescueTimeoutMin) * time.Minute,
		}, stores.Scheduled, stores.Conversations, stores.Contacts, stores.Messages,
			stores.Locks, gateway, logger)
		go worker.Run(ctx)
	} else {
		logger.Info("scheduler disabled")
	}

	campaigns := campaign.NewEngine(stores.Campaigns, gateway, gateway,
		time.Duration(cfg.Campaign.PacingSec)*time.Second, logger)
	go campaigns.Poll(ctx, time.Duration(cfg.Campaign.PollIntervalSec)*time.Second)

	srv := webhook.NewServer(proc, stores.Events, stores.Ping, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("webhook server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	proc.Wait()
	sink.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", "error", err)
	}
	logger.Info("bye")
}
