package main

import (
	"context"
	"os"
	"sync"
	"time"

	"finsight/internal/amqp"
	"finsight/internal/cli"
	"finsight/internal/config"
	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/realtime"
	"finsight/internal/services"
	gsheet "finsight/internal/sheets/google"
	"finsight/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentWorker)
	cli.ValidateConfig(logger, cfg.ValidateWorker())

	logger.Info("Starting finsight-worker")

	ctx := context.Background()
	store := cli.OpenStore(ctx, logger, cfg)
	defer store.Close()

	policy, err := core.ParseGoalStatusPolicy(cfg.GoalStatusPolicy)
	if err != nil {
		logger.Error("Invalid goal status policy", log.FieldError, err.Error())
		os.Exit(1)
	}

	// Initialize Google Sheets client for the mirror (optional)
	var mirror *worker.SheetsMirror
	if cfg.SheetsEnabled() {
		sheetsClient, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleSheetName,
			Credentials:   cli.GoogleCredentials(cfg),
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
			os.Exit(1)
		}
		mirror = worker.NewSheetsMirror(store, sheetsClient, logger)
		logger.Info("Google Sheets client initialized", log.FieldSheetsRef, cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	// Durable shared queue bound only to transaction inserts.
	amqpClient, err := amqp.NewClient(amqp.Config{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
		Bindings: worker.Bindings,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Goal updates made by the sweeper reach API instances through the
	// broker; the local hub has no subscribers.
	bridge := realtime.NewBridge(realtime.NewHub(1, logger), amqpClient, logger)
	finance := services.NewFinance(store, bridge, policy, logger)

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
		wg.Wait()
	})

	if mirror != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mirror.Run(ctx, amqpClient); err != nil {
				logger.Error("Message consumption failed", log.FieldError, err.Error())
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - no sheets mirror available")
	}

	if policy == core.PolicyAutomatic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			services.NewGoalSweeper(finance, logger).Run(ctx, cfg.GoalSweepInterval)
		}()
	} else {
		logger.Info("Goal sweeper disabled - manual goal status policy")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
