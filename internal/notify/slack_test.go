package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierNotify(t *testing.T) {
	viper.Reset()
	viper.Set("notifications.slack.enabled", true)
	viper.Set("notifications.slack.events.on_paused", true)

	receivedMessage := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		var payload map[string]string
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		receivedMessage = payload["text"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := &WebhookNotifier{WebhookURL: server.URL}
	_, err := notifier.Notify(context.Background(), EventPaused, "Task completed successfully!", "")
	require.NoError(t, err)
	require.Equal(t, "Task completed successfully!", receivedMessage)
}

func TestWebhookNotifierNotifyErrorStatus(t *testing.T) {
	viper.Reset()
	viper.Set("notifications.slack.enabled", true)
	viper.Set("notifications.slack.events.on_paused", true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := &WebhookNotifier{WebhookURL: server.URL}
	_, err := notifier.Notify(context.Background(), EventPaused, "test", "")
	require.Error(t, err)
}

func TestWebhookNotifierSkipsWhenEventDisabled(t *testing.T) {
	viper.Reset()
	viper.Set("notifications.slack.enabled", true)

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := &WebhookNotifier{WebhookURL: server.URL}
	_, err := notifier.Notify(context.Background(), EventPaused, "test", "")
	require.NoError(t, err)
	require.False(t, called)
}
