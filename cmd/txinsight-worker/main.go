package main

import (
	"context"
	"errors"
	"os"
	"time"

	"txinsight/internal/amqp"
	"txinsight/internal/cli"
	"txinsight/internal/sheets"
	gsheet "txinsight/internal/sheets/google"
	mem "txinsight/internal/sheets/memory"
	"txinsight/internal/worker"
)

const (
	shutdownTimeout  = 30 * time.Second
	memoryMirrorRows = 10000
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	logger := cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting txinsight-worker")

	if !cfg.AMQPEnabled() {
		logger.Info("AMQP disabled - no AMQP_URL provided, nothing to consume")
		return
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Without a spreadsheet the worker still drains the queue and marks
	// batches synced so the pending set stays bounded.
	var appender sheets.RecordAppender
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		if err := client.EnsureHeader(context.Background()); err != nil {
			logger.Error("Failed to prepare sheet header", "error", err, "sheet", cfg.GoogleSheetName)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		appender = mem.NewWithLimit(memoryMirrorRows)
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring to memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, appender, cfg.SyncBatchSize)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	go func() {
		if err := amqpClient.ConsumeBatchIngested(ctx, syncWorker.HandleBatchMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := syncWorker.ProcessPendingBatches(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
