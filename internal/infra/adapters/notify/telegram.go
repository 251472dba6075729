package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/adapter"
)

var _ adapter.DeadLetterNotifier = (*TelegramNotifier)(nil)

// TelegramNotifier posts retry-exhausted tasks to an operator chat so a
// human can decide whether to respawn them.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &TelegramNotifier{bot: bot, chatID: chatID, log: &l}, nil
}

func (n *TelegramNotifier) NotifyDeadLetter(ctx context.Context, task *model.Task, lastErr string) error {
	text := fmt.Sprintf(
		"⚠️ Task dead-lettered\n\nTask: %s\nTitle: %s\nTenant: %s\nAgent: %s\nAttempts: %d/%d\nLast error: %s",
		task.ID, task.Title, task.TenantID, task.AgentID, task.RetryCount, task.MaxRetries, lastErr,
	)
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error().Err(err).Str("task_id", task.ID).Msg("dead-letter notification failed")
		return err
	}
	return nil
}

// NoopNotifier drops notifications; used when no operator chat is configured.
type NoopNotifier struct{}

func (NoopNotifier) NotifyDeadLetter(ctx context.Context, task *model.Task, lastErr string) error {
	return nil
}
