package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/forest-guardian/index-composite/internal/properties"
)

const (
	colorRed   = 16711680
	colorGreen = 65280
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Discord posts export outcomes to webhooks. An empty URL disables that
// kind of notification.
type Discord struct {
	SuccessURL string
	ErrorURL   string
	client     *http.Client
}

func NewDiscord(successURL, errorURL string) *Discord {
	return &Discord{
		SuccessURL: successURL,
		ErrorURL:   errorURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func DiscordFromEnv() *Discord {
	return NewDiscord(properties.DiscordSuccessNotificationUrl(), properties.DiscordErrorNotificationUrl())
}

func (d *Discord) Success(message string) error {
	return d.send(d.SuccessURL, DiscordEmbed{
		Title:       "✅ Export completed",
		Description: message,
		Color:       colorGreen,
	})
}

func (d *Discord) Error(message string) error {
	return d.send(d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Export failed",
		Description: fmt.Sprintf("An error occurred: %s", message),
		Color:       colorRed,
	})
}

func (d *Discord) send(url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	resp, err := d.client.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
