// Package notify provides a webhook client for announcing earned rewards.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/roamly/progression-engine/internal/config"
	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/pkg/logger"
)

// Client posts reward announcements to a configured webhook.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new webhook client.
func NewClient(cfg *config.NotifyConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: http.DefaultClient,
		log:        log,
	}
}

// Message represents a webhook message payload.
type Message struct {
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// SendMessage sends a message to the webhook.
func (c *Client) SendMessage(msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Notifications are disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent webhook message")

	return nil
}

// AnnounceBadge announces a newly earned badge. Failures are logged, not
// returned: announcements are best-effort and never block reward granting.
func (c *Client) AnnounceBadge(user *models.User, badge *models.BadgeDefinition) {
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	text := fmt.Sprintf("%s %s earned the **%s** badge!", badge.Icon, name, badge.Name)
	if err := c.SendMessage(&Message{Text: text}); err != nil {
		c.log.Warn().
			Err(err).
			Str("badge", badge.Name).
			Msg("Failed to announce badge")
	}
}

// AnnounceLevelUp announces a level increase.
func (c *Client) AnnounceLevelUp(user *models.User, level uint32) {
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	text := fmt.Sprintf("🎉 %s reached level %d!", name, level)
	if err := c.SendMessage(&Message{Text: text}); err != nil {
		c.log.Warn().
			Err(err).
			Uint32("level", level).
			Msg("Failed to announce level up")
	}
}
