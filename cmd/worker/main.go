package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/gonzalo-wi/reporteDiferencias/internal/app"
	"github.com/gonzalo-wi/reporteDiferencias/internal/deposits"
	"github.com/gonzalo-wi/reporteDiferencias/internal/mailer"
	"github.com/gonzalo-wi/reporteDiferencias/internal/platform/cache"
	"github.com/gonzalo-wi/reporteDiferencias/internal/reports"
	"github.com/gonzalo-wi/reporteDiferencias/jobs"
	"github.com/gonzalo-wi/reporteDiferencias/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		slog.Default().Debug("no .env file loaded", slog.Any("error", err))
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	depositClient := deposits.NewClient(deposits.ClientConfig{
		BaseURL: cfg.ExternalAppURL,
		Timeout: cfg.UpstreamTimeout,
		Retries: cfg.UpstreamRetries,
		Backoff: cfg.UpstreamBackoff,
		Logger:  logger,
	})
	aggregator := reports.NewAggregator(depositClient, cfg.MinShortfall, logger)

	renderer, err := reports.NewRenderer(report.NewClient(cfg.GotenbergURL), cfg.ReportsDir)
	if err != nil {
		logger.Error("init renderer", slog.Any("error", err))
		os.Exit(1)
	}

	dispatcher := reports.NewDispatcher(reports.DispatcherConfig{
		Mailer: mailer.New(mailer.Config{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			User:      cfg.SMTPUser,
			Pass:      cfg.SMTPPass,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}),
		RHEmail:      cfg.RHEmail,
		AdminEmail:   cfg.AdminEmail,
		FromName:     cfg.FromName,
		MinShortfall: cfg.MinShortfall,
		Retry: reports.RetryPolicy{
			Attempts: cfg.SMTPRetries,
			Backoff:  cfg.SMTPBackoff,
		},
		Logger: logger,
	})

	runner := reports.NewRunner(reports.RunnerConfig{
		Aggregator: aggregator,
		Renderer:   renderer,
		Dispatcher: dispatcher,
		Lock:       reports.NewRunLock(redisClient, 0),
		ReportsDir: cfg.ReportsDir,
		DaysToKeep: cfg.DaysToKeep,
		Location:   cfg.Location(),
		Logger:     logger,
	})

	dailyJob := jobs.NewDailyReportJob(runner, logger)

	dailyTask, err := jobs.NewDailyReportTask("cron")
	if err != nil {
		logger.Error("build daily task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Location:  cfg.Location(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDailyReport, Handler: dailyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CronSpec(), Task: dailyTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started",
		slog.String("cron", cfg.CronSpec()),
		slog.String("tz", cfg.Timezone))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
