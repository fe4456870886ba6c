package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier posts messages to a slack- or discord-style incoming
// webhook. The two differ only in the JSON field name.
type WebhookNotifier struct {
	URL    string
	Kind   string // "slack" or "discord"
	Client *http.Client
	Logger *slog.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(kind, url string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Kind:   kind,
		Client: &http.Client{Timeout: 10 * time.Second},
		Logger: logger.With("system", "notify", "kind", kind),
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, msg string) {
	if err := n.post(ctx, msg); err != nil {
		n.Logger.Warn("webhook notification failed", "err", err)
	}
}

func (n *WebhookNotifier) post(ctx context.Context, msg string) error {
	var payload any
	switch n.Kind {
	case "discord":
		payload = map[string]string{"content": msg}
	default:
		payload = map[string]string{"text": msg}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook POST failed. status=%d", resp.StatusCode)
	}
	return nil
}
