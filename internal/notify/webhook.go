package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/netguard"
)

// WebhookSink POSTs alerts as JSON to an HTTP endpoint.
type WebhookSink struct {
	url      string
	client   *http.Client
	backoffs []time.Duration
}

// NewWebhookSink validates url against the SSRF guard and returns a sink
// whose connections are guarded as well.
func NewWebhookSink(ctx context.Context, url string, timeout time.Duration) (*WebhookSink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if err := netguard.CheckURL(ctx, url); err != nil {
		return nil, fmt.Errorf("webhook url rejected: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return newWebhookSink(url, netguard.NewClient(timeout)), nil
}

func newWebhookSink(url string, client *http.Client) *WebhookSink {
	return &WebhookSink{
		url:      url,
		client:   client,
		backoffs: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, a *Alert) error {
	if a == nil {
		return nil
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(s.backoffs); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "LinkBuster-Alerts/2.0")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("post: %w", err)
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("status %d body=%q", resp.StatusCode, truncate(body, 200))
		}

		if attempt < len(s.backoffs) {
			timer := time.NewTimer(s.backoffs[attempt])
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (s *WebhookSink) Close(context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
