package telegram

import (
	"errors"

	"gopkg.in/telebot.v3"
)

// Client defines an interface for sending messages via a Telegram bot.
// This helps in decoupling the application logic from the specific bot library.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// Per-recipient delivery failures. Both are permanent for the recipient in
// question; any other error coming out of a Client is treated as transient.
var (
	ErrRecipientBlocked     = errors.New("recipient has blocked the bot")
	ErrRecipientUnreachable = errors.New("recipient chat is unreachable")
)
