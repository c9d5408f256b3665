package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spendwise/internal/cli"
	"spendwise/internal/config"
	"spendwise/internal/log"
	"spendwise/internal/worker"
)

const (
	pendingBatchSize = 100
	shutdownTimeout  = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker, nil)
	logger.Info("Starting spendwise-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == config.BackendMemory {
		logger.Error("The worker needs a shared backend", "backend", cfg.DataBackend, "hint", "set DATA_BACKEND=sqlite or remote")
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStart()

	res := cli.OpenBackend(startCtx, logger, cfg)
	defer res.Close()
	if res.Events == nil {
		logger.Error("AMQP broker unreachable")
		os.Exit(1)
	}

	opts := []worker.Option{worker.WithLogger(logger.Logger)}
	sheets, err := cli.NewSheetsExporter(startCtx, logger, cfg)
	if err != nil {
		logger.Error("Sheets mirror disabled", log.FieldError, err)
	} else if sheets != nil {
		opts = append(opts, worker.WithMirror(sheets))
	}
	w := worker.NewCategorizeWorker(res.Backend, pendingBatchSize, opts...)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	// Catch up on entries stored while no worker was running.
	processed, failed, err := w.ProcessPending(ctx)
	if err != nil {
		logger.Error("Startup categorization failed", log.FieldError, err)
	} else {
		logger.Info("Startup categorization complete", "processed", processed, "failed", failed)
	}

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- res.Events.ConsumeTransactionEvents(ctx, cfg.WorkerPrefetch, w.HandleTransactionEvent)
	}()

	select {
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
