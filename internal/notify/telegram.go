package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sentora/sentora/pkg/types"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramChannel delivers alerts through the Telegram bot API.
type TelegramChannel struct {
	apiBase    string
	botToken   string
	chatID     string
	httpClient *http.Client
}

// NewTelegramChannel creates a Telegram channel.
func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		apiBase:  telegramAPIBase,
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Kind implements Channel.
func (c *TelegramChannel) Kind() types.ChannelKind {
	return types.ChannelTelegram
}

// Send implements Channel.
func (c *TelegramChannel) Send(ctx context.Context, alert *types.Alert) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": c.chatID,
		"text":    formatAlertText(alert),
	})
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to telegram: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}
