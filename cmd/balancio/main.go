package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"balancio/internal/auth"
	"balancio/internal/cache"
	"balancio/internal/cli"
	apphttp "balancio/internal/http"
	"balancio/internal/log"
	"balancio/internal/notify"
	"balancio/internal/ofx"
	"balancio/internal/realtime"
	"balancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	be := cli.OpenBackend(context.Background(), logger, cfg)
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error("Failed to release backend", log.FieldError, err)
		}
	}()

	// Alerts go through the broker when one is configured and are
	// delivered in-process otherwise.
	var publisher services.AlertPublisher
	if be.Publisher != nil {
		publisher = be.Publisher
	} else {
		dispatcher := notify.NewDispatcher(be.Store, logger, cli.Notifiers(logger, cfg)...)
		publisher = services.AlertPublisherFunc(dispatcher.HandleBudgetAlert)
		logger.Info("AMQP disabled - budget alerts are dispatched in-process")
	}

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	hub := realtime.NewHub(logger, cfg.AllowedOrigin)
	dashboards := cache.NewLRUCache[services.Evaluation](cfg.CacheSize, cfg.CacheTTL)

	caches := cache.NewManager(logger)
	caches.Register("dashboards", dashboards)
	caches.Register("revoked_tokens", tokens.Revocations())
	caches.StartCleanup(time.Minute)

	budgets := services.NewBudgetService(be.Store, publisher, hub, dashboards, logger)
	authSvc := services.NewAuthService(be.Store, tokens, logger)

	broker := auth.NewBroker(cfg.OAuth.FlowTimeout, authSvc.OAuthLogin, logger)
	broker.Configure(cfg.PublicBaseURL, cfg.OAuth)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		AllowedOrigins: cfg.AllowedOrigin,
		RateLimit:      cfg.RateLimit,
		Logger:         logger,
	}, apphttp.Services{
		Store:        be.Store,
		Auth:         authSvc,
		Budgets:      budgets,
		Transactions: services.NewTransactionService(be.Store, budgets, logger),
		Categories:   services.NewCategoryService(be.Store, budgets, logger),
		Profiles:     services.NewProfileService(be.Store, budgets, logger),
		Tokens:       tokens,
		Broker:       broker,
		Hub:          hub,
		Statements:   ofx.NewParser(logger),
		Dashboards:   dashboards,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
	})
	go broker.RunSweeper(ctx, time.Minute)

	logger.Info("Starting balancio server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", be.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
