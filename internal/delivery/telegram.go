package delivery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Sender is the external messaging API surface the pipeline needs: an
// image-with-caption send and a plain-text send, both MarkdownV2.
type Sender interface {
	SendPhoto(ctx context.Context, photoURL, caption string) error
	SendText(ctx context.Context, text string) error
}

// TelegramSender delivers to one chat through the Bot API.
type TelegramSender struct {
	bot  *tele.Bot
	chat *tele.Chat
}

func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	// Send-only: no poller, bounded HTTP client so sends cannot hang a worker.
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: 30 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b, chat: &tele.Chat{ID: chatID}}, nil
}

func sendOptions() *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}
}

func (s *TelegramSender) SendPhoto(ctx context.Context, photoURL, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := &tele.Photo{
		File:    tele.FromURL(photoURL),
		Caption: caption,
	}
	_, err := s.bot.Send(s.chat, photo, sendOptions())
	return err
}

func (s *TelegramSender) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.chat, text, sendOptions())
	return err
}
