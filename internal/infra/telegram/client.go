// internal/infra/telegram/client.go
package telegram

import (
	"errors"

	domainTelegram "classroom_reminder_bot/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the specified recipient and maps
// telebot's error values onto the domain failure taxonomy.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: recipientChatID} // Students are direct user chats
	_, err := tba.bot.Send(recipient, text, options)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, telebot.ErrBlockedByUser):
		return domainTelegram.ErrRecipientBlocked
	case errors.Is(err, telebot.ErrUserIsDeactivated), errors.Is(err, telebot.ErrChatNotFound):
		return domainTelegram.ErrRecipientUnreachable
	}
	return err
}
