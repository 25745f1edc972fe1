package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// WebhookNotifier sends notifications to a single Slack Incoming Webhook
// URL. It is the configurable alternative to Manager's bot-token transport
// (notifications.slack.transport: webhook), for operators who only want a
// channel post and don't need threading, reactions, or Socket Mode.
type WebhookNotifier struct {
	WebhookURL string
	Client     *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier, reading
// notifications.slack.webhookURL from viper the way config.Load populated
// it.
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		WebhookURL: viper.GetString("notifications.slack.webhookURL"),
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Start is a no-op: the webhook transport has no background connection to
// maintain.
func (s *WebhookNotifier) Start(ctx context.Context) {}

// Notify posts message to the configured webhook if eventType is enabled.
// Webhooks have no notion of threads or message ids, so threadTS is ignored
// and the returned id is always empty.
func (s *WebhookNotifier) Notify(ctx context.Context, eventType, message, threadTS string) (string, error) {
	if s.WebhookURL == "" || !s.isEnabled(eventType) {
		return "", nil
	}

	payload := map[string]string{"text": message}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("build slack webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send slack webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("slack webhook notification failed with status: %s", resp.Status)
	}
	return "", nil
}

// AddReaction is a no-op: Incoming Webhooks cannot react to messages they
// did not post through the Web API.
func (s *WebhookNotifier) AddReaction(ctx context.Context, timestamp, reaction string) error {
	return nil
}

func (s *WebhookNotifier) isEnabled(eventType string) bool {
	if !viper.GetBool("notifications.slack.enabled") {
		return false
	}
	return viper.GetBool("notifications.slack.events." + eventType)
}

var _ Notifier = (*WebhookNotifier)(nil)
