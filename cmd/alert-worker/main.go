package main

import (
	"context"
	"os"
	"time"

	"balancio/internal/cli"
	"balancio/internal/log"
	"balancio/internal/notify"
	"balancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting alert-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the alert worker")
		os.Exit(1)
	}

	be := cli.OpenBackend(context.Background(), logger, cfg)
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error("Failed to release backend", log.FieldError, err)
		}
	}()
	if be.Publisher == nil {
		logger.Error("AMQP broker unreachable", "url_configured", true)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(be.Store, logger, cli.Notifiers(logger, cfg)...)
	w := worker.NewAlertWorker(be.Publisher, dispatcher.HandleBudgetAlert, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	if err := w.Run(ctx); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Alert-worker shutdown complete")
}
