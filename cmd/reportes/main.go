package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/gonzalo-wi/reporteDiferencias/internal/app"
	"github.com/gonzalo-wi/reporteDiferencias/internal/deposits"
	"github.com/gonzalo-wi/reporteDiferencias/internal/mailer"
	"github.com/gonzalo-wi/reporteDiferencias/internal/platform/cache"
	"github.com/gonzalo-wi/reporteDiferencias/internal/reports"
	reporthttp "github.com/gonzalo-wi/reporteDiferencias/internal/reports/http"
	"github.com/gonzalo-wi/reporteDiferencias/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	runner, aggregator, err := buildPipeline(cfg, redisClient, logger)
	if err != nil {
		logger.Error("init pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	if err := report.NewClient(cfg.GotenbergURL).Ping(ctx); err != nil {
		logger.Warn("gotenberg not reachable, pdf rendering will fail until it is up",
			slog.String("url", cfg.GotenbergURL),
			slog.Any("error", err))
	}

	handler := reporthttp.NewHandler(logger, aggregator, runner, cfg.ReportsDir, cfg.Timezone, cfg.Location())
	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		ReportsHandler: handler,
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server run", slog.Any("error", err))
		os.Exit(1)
	}
}

// buildPipeline wires the report pipeline from configuration.
func buildPipeline(cfg *app.Config, redisClient *redis.Client, logger *slog.Logger) (*reports.Runner, *reports.Aggregator, error) {
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
		return nil, nil, err
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
	return runner, aggregator, nil
}
