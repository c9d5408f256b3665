package main

import (
	"context"
	"os"
	"time"

	"spendwise/internal/cache"
	"spendwise/internal/cli"
	"spendwise/internal/core"
	apphttp "spendwise/internal/http"
	"spendwise/internal/log"
	"spendwise/internal/session"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp, nil)
	cfg := cli.LoadAndValidateConfig(logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStart()

	res := cli.OpenBackend(startCtx, logger, cfg)

	opts := []session.Option{
		session.WithLogger(logger.WithComponent(log.ComponentSession)),
		session.WithSnapshotCache(cache.NewLRUCache[core.Snapshot](cfg.AnalyticsCacheSize, cfg.AnalyticsCacheTTL)),
	}
	if res.Events != nil {
		opts = append(opts, session.WithPublisher(res.Events))
	}
	sess := session.New(res.Backend, opts...)

	// The server starts even when the first load fails; /readyz reports it
	// and POST /api/refresh retries.
	if err := sess.Load(startCtx); err != nil {
		logger.Error("Initial load failed", log.FieldError, err, log.FieldOperation, log.OpStartup)
	}

	sheets, err := cli.NewSheetsExporter(startCtx, logger, cfg)
	if err != nil {
		logger.Error("Sheets export disabled", log.FieldError, err)
	}
	serverOpts := apphttp.Options{
		Logger:         logger,
		TrustedProxies: cfg.TrustedProxies,
		Version:        cfg.AppVersion,
	}
	if sheets != nil {
		serverOpts.Sheets = sheets
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, sess, serverOpts)
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		sess.Close()
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	logger.Info("Starting spendwise server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Events != nil,
		"version", cfg.AppVersion)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
