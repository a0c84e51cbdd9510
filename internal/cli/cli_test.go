package cli

import (
	"context"
	"log/slog"
	"testing"

	"balancio/internal/config"
	"balancio/internal/log"
)

func TestNotifiersWithoutTelegramToken(t *testing.T) {
	got := Notifiers(log.Discard(), &config.Config{})
	if len(got) != 1 {
		t.Fatalf("expected only the log notifier, got %d", len(got))
	}
	if got[0].Name() != "log" {
		t.Errorf("expected log notifier, got %q", got[0].Name())
	}
}

func TestSetupLoggerFallsBackToInfo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")
	t.Setenv("LOG_FORMAT", "json")

	logger := SetupLogger(log.ComponentApp)
	if logger == nil {
		t.Fatal("expected a logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be enabled after an unknown level")
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to stay disabled")
	}
}
