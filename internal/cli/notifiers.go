package cli

import (
	"balancio/internal/config"
	"balancio/internal/log"
	"balancio/internal/notify"
)

// Notifiers returns the delivery channels for alerts and reports: the log
// always, Telegram when a bot token is configured and reachable.
func Notifiers(logger *log.Logger, cfg *config.Config) []notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLog(logger)}
	if cfg.Telegram.Token == "" {
		logger.Info("Telegram notifications disabled - no TELEGRAM_TOKEN provided")
		return notifiers
	}
	tg, err := notify.NewTelegram(cfg.Telegram.Token, logger)
	if err != nil {
		logger.Warn("Telegram notifier unavailable, continuing with log delivery only", log.FieldError, err)
		return notifiers
	}
	return append(notifiers, tg)
}
