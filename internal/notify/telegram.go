package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"balancio/internal/core"
	"balancio/internal/log"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends alerts and reports to the user's configured chat.
type Telegram struct {
	bot    Sender
	logger *log.Logger
}

// NewTelegram authenticates the bot token against the Telegram API.
func NewTelegram(token string, logger *log.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	t := NewTelegramWithSender(bot, logger)
	t.logger.Info("Telegram notifier ready", "bot", bot.Self.UserName)
	return t, nil
}

func NewTelegramWithSender(bot Sender, logger *log.Logger) *Telegram {
	if logger == nil {
		logger = log.Discard()
	}
	return &Telegram{bot: bot, logger: logger.WithComponent(log.ComponentNotify)}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) NotifyAlert(ctx context.Context, u core.User, a Alert) error {
	return t.send(ctx, u, FormatAlert(a))
}

func (t *Telegram) NotifyReport(ctx context.Context, u core.User, r Report) error {
	return t.send(ctx, u, FormatReport(r))
}

func (t *Telegram) send(ctx context.Context, u core.User, text string) error {
	if u.TelegramChatID == 0 {
		return ErrNoChannel
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(u.TelegramChatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.logger.DebugContext(ctx, "Telegram message sent", log.FieldUserID, u.ID)
	return nil
}
