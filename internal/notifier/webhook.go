package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

var ErrWebhookRejected = errors.New("webhook rejected notification")

type WebhookNotifier struct {
	client  *http.Client
	url     string
	headers map[string]string
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &WebhookNotifier{
		client:  &http.Client{Timeout: timeout},
		url:     cfg.URL,
		headers: cfg.Headers,
	}
}

// Notify POSTs the notification as JSON and expects a 2xx answer.
func (n *WebhookNotifier) Notify(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error {
	body, err := json.Marshal(NewNotification(alarm, previous, state, reason))
	if err != nil {
		return sinkError("webhook", alarm.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return sinkError("webhook", alarm.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return sinkError("webhook", alarm.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return sinkError("webhook", alarm.ID, fmt.Errorf("%w: status code %d", ErrWebhookRejected, resp.StatusCode))
	}

	return nil
}
