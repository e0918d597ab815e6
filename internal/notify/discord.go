package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

// DiscordSender delivers alerts via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// levelColor maps severity to a Discord embed color.
func levelColor(level domain.AlertLevel) int {
	switch level {
	case domain.AlertCritical:
		return 0x992D22 // dark red
	case domain.AlertError:
		return 0xE74C3C // red
	case domain.AlertWarning:
		return 0xF1C40F // yellow
	default:
		return 0x3498DB // blue
	}
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Timestamp   string              `json:"timestamp"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Send posts the alert as a color-coded embed to the webhook.
func (d *DiscordSender) Send(ctx context.Context, alert domain.Alert) error {
	embed := discordEmbed{
		Title:       strings.ToUpper(string(alert.Level)) + ": " + alert.Title,
		Description: alert.Message,
		Color:       levelColor(alert.Level),
		Timestamp:   alert.Timestamp.Format(time.RFC3339),
		Fields: []discordEmbedField{
			{Name: "Type", Value: string(alert.Type), Inline: true},
			{Name: "Priority", Value: fmt.Sprintf("%d", alert.Priority), Inline: true},
		},
	}

	payload := map[string]any{
		"embeds": []discordEmbed{embed},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
