package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Telegram sends notifications to a single chat. This is a sink only:
// no command handlers, no update polling.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates the Telegram sink.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("notify: telegram token not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("notify: telegram chat id not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram notifier initialized")
	return &Telegram{api: api, chatID: chatID}, nil
}

// Send implements Notifier.
func (t *Telegram) Send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Telegram send failed")
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	return nil
}
