package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"profile-enrichment/internal/config"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/domain/ports/adapter"
)

var _ adapter.CompletionNotifier = (*TelegramNotifier)(nil)

// TelegramNotifier pushes terminal session outcomes to a configured chat.
// Delivery is best effort; the workflow never blocks or fails on it.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramNotifier(cfg config.NotifyConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if cfg.TelegramToken == "" {
		return nil, errors.New("telegram token empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	ntfLog := logger.With().Str("component", "TelegramNotifier").Logger()
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID, log: &ntfLog}, nil
}

func (n *TelegramNotifier) NotifyCompleted(ctx context.Context, sessionID string, result *model.MergedResult) error {
	text := fmt.Sprintf(
		"✅ Enrichment completed\nSession: %s\nTarget: %s\nEntities: %d (%d with secondary profile)",
		sessionID, result.TargetName, result.TotalEntities, result.TotalWithSecondary,
	)
	return n.send(ctx, text)
}

func (n *TelegramNotifier) NotifyFailed(ctx context.Context, sessionID string, category string, reason string) error {
	text := fmt.Sprintf(
		"🚨 Enrichment failed\nSession: %s\nCategory: %s\nReason: %s",
		sessionID, category, reason,
	)
	return n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Msg("notification delivery failed")
		return err
	}
	return nil
}
