package main

import (
	"context"
	"os"
	"time"

	"balancio/internal/cli"
	"balancio/internal/log"
	"balancio/internal/notify"
	"balancio/internal/services"
	"balancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentReport)
	logger.Info("Starting report-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	schedule, err := services.GetReportSchedule(cfg.ReportSchedule)
	if err != nil {
		logger.Error("Invalid report schedule", log.FieldError, err, "schedule", cfg.ReportSchedule)
		os.Exit(1)
	}

	be := cli.OpenBackend(context.Background(), logger, cfg)
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error("Failed to release backend", log.FieldError, err)
		}
	}()

	dispatcher := notify.NewDispatcher(be.Store, logger, cli.Notifiers(logger, cfg)...)
	processor := services.NewReportProcessor(be.Store, dispatcher, schedule, logger)

	logger.Info("Report processor configured",
		"interval", cfg.ReportInterval,
		"schedule", cfg.ReportSchedule,
		"backend", cfg.DataBackend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	if err := worker.NewReportWorker(processor, cfg.ReportInterval, logger).Run(ctx); err != nil {
		logger.Error("Report worker failed", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Report-worker shutdown complete")
}
