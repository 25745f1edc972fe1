package notify

import (
	"context"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/viper"
)

// Event types the coordinator notifies on (spec.md §12 "Operator
// notification on pause/alert"): a subset of the Event Bus's types that
// warrant paging a human, not a 1:1 mirror of every events.Type.
const (
	EventPaused          = "on_paused"
	EventCreditExhausted = "on_credit_exhausted"
	EventMainSyncAlert   = "on_main_sync_alert"
	EventValidationRevert = "on_validation_reverted"
)

// Manager sends coordinator notifications to Slack, the coordinator's
// only notification destination.
type Manager struct {
	client       *slack.Client
	socketClient *socketmode.Client
	channelID    string

	logger func(string, ...interface{})
}

// NewManager creates a Notification Manager, reading `notifications.slack.*`
// from viper the way config.Load populated it.
func NewManager(logger func(string, ...interface{})) *Manager {
	m := &Manager{logger: logger}
	m.initSlack()
	return m
}

func (m *Manager) initSlack() {
	if !viper.GetBool("notifications.slack.enabled") {
		return
	}

	botToken := viper.GetString("notifications.slack.botToken")
	appToken := viper.GetString("notifications.slack.appToken")
	if botToken == "" {
		if m.logger != nil {
			m.logger("Warning: notifications.slack.botToken not set, slack notifications disabled")
		}
		return
	}

	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	m.client = api
	m.channelID = viper.GetString("notifications.slack.channel")

	if appToken != "" && strings.HasPrefix(appToken, "xapp-") {
		m.socketClient = socketmode.New(api)
	}
}

// Start runs Socket Mode in the background, if the manager was configured
// with an app-level token.
func (m *Manager) Start(ctx context.Context) {
	if m.socketClient == nil {
		return
	}
	go func() {
		if m.logger != nil {
			m.logger("Starting Slack Socket Mode...")
		}
		if err := m.socketClient.RunContext(ctx); err != nil && err != context.Canceled {
			if m.logger != nil {
				m.logger("Slack Socket Mode error: %v", err)
			}
		}
	}()
}

// Notify posts message to the configured channel if eventType is enabled,
// threading onto threadTS when given, and returns the new thread timestamp.
func (m *Manager) Notify(ctx context.Context, eventType, message, threadTS string) (string, error) {
	if m.client == nil || !m.isEnabled(eventType) {
		return "", nil
	}

	channelID := m.channelID
	if channelID == "" {
		channelID = "#general"
	}

	opts := []slack.MsgOption{slack.MsgOptionText(message, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, newTS, err := m.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		if m.logger != nil {
			m.logger("Failed to send Slack notification: %v", err)
		}
		return "", err
	}
	return newTS, nil
}

// AddReaction adds an emoji reaction to a previously-sent notification.
func (m *Manager) AddReaction(ctx context.Context, timestamp, reaction string) error {
	if m.client == nil || timestamp == "" {
		return nil
	}
	channelID := m.channelID
	if channelID == "" {
		channelID = "#general"
	}
	err := m.client.AddReactionContext(ctx, reaction, slack.ItemRef{
		Channel:   channelID,
		Timestamp: timestamp,
	})
	if err != nil && m.logger != nil {
		m.logger("Failed to add Slack reaction %s: %v", reaction, err)
	}
	return err
}

func (m *Manager) isEnabled(eventType string) bool {
	if !viper.GetBool("notifications.slack.enabled") {
		return false
	}
	return viper.GetBool("notifications.slack.events." + eventType)
}

var _ Notifier = (*Manager)(nil)
