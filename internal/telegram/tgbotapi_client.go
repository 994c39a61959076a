package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers a message to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// TGBotAPIClient adapts tgbotapi.BotAPI to Sender.
type TGBotAPIClient struct {
	bot *tgbotapi.BotAPI
}

// NewTGBotAPIClient creates a new Telegram client using tgbotapi.
// It calls getMe, so an invalid token fails here.
func NewTGBotAPIClient(token string) (*TGBotAPIClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TGBotAPIClient{bot: bot}, nil
}

// NewTGBotAPIClientWithEndpoint targets a custom Bot API server.
// The endpoint is a format string taking the token and the method name.
func NewTGBotAPIClientWithEndpoint(token, endpoint string) (*TGBotAPIClient, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, err
	}
	return &TGBotAPIClient{bot: bot}, nil
}

// SendMessage sends an HTML formatted message to the specified chat.
func (c *TGBotAPIClient) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := c.bot.Send(msg)
	return err
}

var _ Sender = (*TGBotAPIClient)(nil)
