package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramSender delivers notifications through the Telegram Bot API
// sendMessage endpoint.
type TelegramSender struct {
	url    string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender posting to the chat identified
// by chatID with the given bot token.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		url:    "https://api.telegram.org/bot" + token + "/sendMessage",
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send posts the notification with the title as a bold first line.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:    t.chatID,
		Text:      fmt.Sprintf("*%s*\n%s", title, message),
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
