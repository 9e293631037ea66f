// Package notify delivers rendered alert digests over outbound channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"SocialMonitor/internal/ports"
)

// SlackNotifier posts digests to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

var _ ports.Notifier = (*SlackNotifier)(nil)

// NewSlackNotifier registers the webhook endpoint.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the channel in logs and metrics.
func (n *SlackNotifier) Name() string {
	return "slack"
}

// Send posts the digest as a simple text payload.
func (n *SlackNotifier) Send(ctx context.Context, digest string) error {
	if n.webhookURL == "" || n.client == nil {
		return fmt.Errorf("slack notifier misconfigured")
	}

	body, err := json.Marshal(map[string]string{"text": digest})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack error: %s", resp.Status)
	}

	return nil
}
