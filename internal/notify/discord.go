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
)

// Embed colors per event type, so an operator can read outcome at a glance.
var discordColors = map[string]int{
	EventResolved:  0x2ecc71, // green
	EventGraduated: 0x3498db, // blue
	EventSettled:   0x9b59b6, // purple
	EventError:     0xe74c3c, // red
}

const discordDefaultColor = 0x95a5a6 // gray

// DiscordSender delivers adjudication alerts to a Discord webhook as
// colored embeds.
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

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Send posts the alert to the webhook as a single embed, colored by event
// type, with the market id as an inline field when the alert names one.
func (d *DiscordSender) Send(ctx context.Context, a Alert) error {
	color, ok := discordColors[a.Event]
	if !ok {
		color = discordDefaultColor
	}

	embed := discordEmbed{
		Title:       a.Title,
		Description: strings.Join(a.Lines, "\n"),
		Color:       color,
	}
	if a.MarketID != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name: "Market", Value: a.MarketID, Inline: true,
		})
	}

	body, err := json.Marshal(map[string]any{"embeds": []discordEmbed{embed}})
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

	// Discord returns 204 No Content on success.
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
