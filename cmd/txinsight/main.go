package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"txinsight/internal/amqp"
	"txinsight/internal/cache"
	"txinsight/internal/cli"
	apphttp "txinsight/internal/http"
	"txinsight/internal/ingest"
	applog "txinsight/internal/log"
	"txinsight/internal/services"
)

const (
	cacheTTL             = 5 * time.Minute
	cacheCleanupInterval = time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	logger := cli.SetupLogger(cfg.LogLevel)
	appLogger := applog.NewWithLevel(applog.ComponentApp, cfg.LogLevel)

	models := cli.LoadModels(logger, cfg.ModelArtifactPath)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	logger.Info("SQLite repository initialized", "path", cfg.SQLiteDBPath)

	opts := []ingest.Option{
		ingest.WithWorkers(cfg.EnrichWorkers),
		ingest.WithPreviewRows(cfg.PreviewRows),
	}

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		opts = append(opts, ingest.WithPublisher(amqpClient))
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided, batch events will not be published")
	}

	cacheManager := cache.NewManager()
	cacheManager.StartCleanup(cacheCleanupInterval)

	pipeline := ingest.NewPipeline(repo, models, opts...)
	reports := services.NewReportService(repo, cacheManager, cacheTTL)
	predictions := services.NewPredictionService(models, reports, cfg.ForecastPeriods)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Pipeline:       pipeline,
		Reports:        reports,
		Predictions:    predictions,
		Store:          repo,
		Logger:         appLogger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
	})

	logger.Info("Starting txinsight server", "port", cfg.Port, "amqp", cfg.AMQPEnabled())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
