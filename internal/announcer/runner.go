package announcer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const webhookAnnouncePath = "/announcements"

type Option func(*eparAnnouncer)

type Service interface {
	Do(ctx context.Context, subject, output string, rows int) error
}

func WithWebhookURL(webhookURL string) Option {
	return func(a *eparAnnouncer) {
		a.baseURL = strings.TrimSpace(webhookURL)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(a *eparAnnouncer) {
		a.client = client
	}
}

type eparAnnouncer struct {
	baseURL string
	client  *http.Client
}

func New(opts ...Option) *eparAnnouncer {
	announcer := &eparAnnouncer{}
	for _, opt := range opts {
		opt(announcer)
	}
	if announcer.client == nil {
		announcer.client = &http.Client{Timeout: 10 * time.Second}
	}
	return announcer
}

// Do posts a one-line summary of a finished export. It is a no-op without a
// webhook URL.
func (a *eparAnnouncer) Do(ctx context.Context, subject, output string, rows int) error {
	if a.baseURL == "" {
		return nil
	}
	baseURL := strings.TrimRight(a.baseURL, "/")
	message := fmt.Sprintf("export: subject %q wrote %d rows to %s", subject, rows, output)
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+webhookAnnouncePath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reporting webhook returned status %s", resp.Status)
	}
	return nil
}
