package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finsight/internal/amqp"
	"finsight/internal/auth"
	"finsight/internal/cache"
	"finsight/internal/cli"
	"finsight/internal/config"
	"finsight/internal/core"
	apphttp "finsight/internal/http"
	"finsight/internal/insights"
	"finsight/internal/log"
	"finsight/internal/objstore"
	"finsight/internal/realtime"
	"finsight/internal/services"
	"finsight/internal/sheets"
	gsheet "finsight/internal/sheets/google"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentApp)
	cli.ValidateConfig(logger, cfg.Validate())

	ctx := context.Background()
	store := cli.OpenStore(ctx, logger, cfg)
	defer store.Close()

	policy, err := core.ParseGoalStatusPolicy(cfg.GoalStatusPolicy)
	if err != nil {
		logger.Error("Invalid goal status policy", log.FieldError, err.Error())
		os.Exit(1)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("Failed to initialize token issuer", log.FieldError, err.Error())
		os.Exit(1)
	}

	// Realtime fan-out: in-process hub, bridged over AMQP when configured so
	// every API instance sees every write.
	hub := realtime.NewHub(64, logger)
	var broker realtime.Broker
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(amqp.Config{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
		broker = amqpClient
		logger.Info("AMQP fan-out enabled", "exchange", cfg.AMQPExchange, "queue", amqpClient.Queue())
	} else {
		logger.Info("AMQP disabled - change events stay in this process")
	}
	bridge := realtime.NewBridge(hub, broker, logger)

	var primary insights.Generator
	if cfg.GeminiAPIKey != "" {
		gemini, err := insights.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("Failed to initialize Gemini client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer gemini.Close()
		primary = gemini
		logger.Info("Gemini insights enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("Gemini disabled - insights use the rule-based generator")
	}
	insightsSvc := insights.NewService(primary, insights.Config{CacheTTL: cfg.InsightsCacheTTL}, logger)

	bucket, err := objstore.Open(ctx, objstore.Config{
		Backend:       cfg.ObjectStore,
		Dir:           cfg.ObjectDir,
		PublicBaseURL: cfg.ObjectPublicBaseURL,
		GCSBucket:     cfg.GCSBucket,
		Credentials:   cli.GoogleCredentials(cfg),
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize object storage", log.FieldError, err.Error(), "backend", cfg.ObjectStore)
		os.Exit(1)
	}
	var objects http.Handler
	if local, ok := bucket.(*objstore.Local); ok {
		objects = local.Handler()
	}

	var exporter sheets.TransactionExporter
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
		exporter = sheetsClient
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	finance := services.NewFinance(store, bridge, policy, logger)

	caches := cache.NewManager(logger)
	caches.Register(insightsSvc.Cache())
	caches.StartCleanup(5 * time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustProxy:         cfg.TrustProxy,
	}, apphttp.Deps{
		Auth:     auth.NewService(store, issuer, logger),
		Finance:  finance,
		Exporter: services.NewExporter(store, store, exporter, logger),
		Insights: insightsSvc,
		Bucket:   bucket,
		Objects:  objects,
		Realtime: realtime.NewHandler(hub, cfg.AllowedOrigins, logger),
		Ready:    store,
		Caches:   caches,
		Logger:   logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	})

	go func() {
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Realtime bridge stopped", log.FieldError, err.Error())
		}
	}()
	// with a broker the worker owns the sweep
	if policy == core.PolicyAutomatic && broker == nil {
		go services.NewGoalSweeper(finance, logger).Run(ctx, cfg.GoalSweepInterval)
	}

	logger.Info("Starting finsight API",
		"port", cfg.Port,
		"db_driver", cfg.DBDriver,
		"object_store", cfg.ObjectStore,
		"goal_status_policy", string(policy))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
