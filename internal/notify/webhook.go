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

// WebhookChannel posts alerts to a chat webhook (Discord-compatible JSON).
type WebhookChannel struct {
	url        string
	httpClient *http.Client
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url: url,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Kind implements Channel.
func (c *WebhookChannel) Kind() types.ChannelKind {
	return types.ChannelWebhook
}

// webhookPayload is the Discord-style body. Unknown fields are ignored by
// the receiver, so the alert ID travels in the text.
type webhookPayload struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, alert *types.Alert) error {
	body, err := json.Marshal(webhookPayload{
		Username: "sentora",
		Content:  formatAlertText(alert),
	})
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
