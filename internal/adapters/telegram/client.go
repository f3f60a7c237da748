// Package telegram adapts the Bot API as the alert transport and exposes a
// webhook handler for inbound bot commands.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"alertador/internal/domain"
	"alertador/internal/ports"
)

// Client is a minimal Bot API client; subscriber ids are chat ids.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

func NewClient(token, baseURL string, timeout time.Duration) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ ports.Transport = (*Client)(nil)

// Send delivers the alert payload as a chat message. Failures map to
// domain.ErrDeliveryFailed so the dispatcher retries them.
func (c *Client) Send(ctx context.Context, subscriberID string, payload domain.AlertPayload) error {
	text := fmt.Sprintf("⚠️ Confirmed phishing\n%s\ndomain: %s", payload.CanonicalURL, payload.Domain)
	return c.sendMessage(ctx, subscriberID, text)
}

func (c *Client) sendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: telegram http %d", domain.ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
