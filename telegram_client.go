// telegram_client.go
package main

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramClient defines the methods required from the Telegram bot.
type TelegramClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// initTelegramClient creates a send-only bot client. The token is not checked
// with getMe; a bad token surfaces on the first SendMessage.
func initTelegramClient(token string) (TelegramClient, error) {
	tgBot, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, err
	}
	return tgBot, nil
}
