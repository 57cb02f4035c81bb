package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"tripsplit/internal/amqp"
	"tripsplit/internal/backend"
	"tripsplit/internal/cli"
	"tripsplit/internal/ledger/google"
	applog "tripsplit/internal/log"
	"tripsplit/internal/services"
	"tripsplit/internal/worker"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	cli.MustValidate(logger, cfg.Validate, cfg.ValidateExport)

	logger.Info("Starting tripsplit-worker")

	if cfg.DataBackend == string(backend.MemoryBackend) {
		logger.Warn("Memory backend is private to this process; the worker will only see its own empty store")
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", "error", err)
			}
		}()
	}

	exporter, err := google.New(ctx, google.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		TabPrefix:       cfg.GoogleTabPrefix,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", "error", err)
		os.Exit(1)
	}

	// The worker only reads trips, so it never publishes events itself.
	svc := services.NewTripService(result.Store, result.Archiver, nil)
	exportWorker := worker.NewExportWorker(svc, exporter)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		g.Go(func() error {
			logger.Info("Consuming trip change events", "queue", cfg.AMQPQueue)
			err := client.ConsumeTripChanged(gctx, exportWorker.HandleTripChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic export")
	}

	if cfg.ExportInterval > 0 {
		periodic := worker.NewPeriodicExporter(exportWorker, cfg.ExportInterval)
		if err := periodic.Start(gctx); err != nil {
			logger.Error("Failed to start periodic exporter", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			return cli.ShutdownOnDone(gctx, logger, cfg.ShutdownTimeout, periodic.Stop)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
