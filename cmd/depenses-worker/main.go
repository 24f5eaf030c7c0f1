package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"depenses/internal/amqp"
	"depenses/internal/backend"
	"depenses/internal/cli"
	"depenses/internal/config"
	"depenses/internal/log"
	"depenses/internal/sheets"
	"depenses/internal/sheets/google"
	sheetsmem "depenses/internal/sheets/memory"
	"depenses/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentWorker, os.Stdout), "Failed to load .env", err)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentWorker, os.Stdout), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker, os.Stdout)
	logger.Info("Starting depenses-worker", "backend", cfg.DataBackend, "sync_interval", cfg.SyncInterval.String())

	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "Worker requires AMQP", errors.New("AMQP_URL is not set"))
	}

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	if backendCfg.Type == backend.MemoryBackend {
		logger.Warn("Memory backend is private to this process; the worker will only see seeded data")
	}
	// The worker only reads the store; it never publishes.
	backendCfg.AMQPURL = ""
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer consumer.Close()

	syncWorker := worker.NewSyncWorker(res.Store, exporter)

	// Reconcile whatever was missed while the worker was down.
	if err := syncWorker.Resync(ctx); err != nil {
		logger.Error("Startup resync failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := consumer.Consume(gctx, syncWorker.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return periodicResync(gctx, syncWorker, cfg.SyncInterval, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func newExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.Exporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
		return sheetsmem.New(), nil
	}
	client, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		return nil, err
	}
	logger.WithComponent(log.ComponentSheets).Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}

func periodicResync(ctx context.Context, w *worker.SyncWorker, interval time.Duration, logger *log.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Resync(ctx); err != nil {
				logger.Error("Periodic resync failed", log.FieldError, err, log.FieldOperation, log.OpSync)
			}
		}
	}
}
