package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pingsantohq/wanwatch/pkg/types"
)

const (
	userAgent        = "wanwatch/1.0"
	fromSuffix       = "ip_monitor"
	bodyPrefixBytes  = 200
	defaultTimeout   = 5 * time.Second
	defaultAttempts  = 3
	sinkNameAPI      = "api"
	sinkNameWebhook  = "webhook"
	maxResponseBytes = 64 << 10
)

// ErrRejected is returned by a sink when the endpoint answered but refused the message.
var ErrRejected = errors.New("delivery rejected")

// Sink performs a single delivery attempt.
type Sink interface {
	Name() string
	MaxAttempts() int
	Deliver(ctx context.Context, ev types.Event) error
}

// APISink posts {"ip_address","msg"} to the monitoring API. Any completed
// request counts as delivered whatever its status code.
type APISink struct {
	URL        string
	Key        string
	FromPrefix string
	Timeout    time.Duration
	Attempts   int
	HTTPClient *http.Client
	Logger     *log.Logger
}

func (s *APISink) Name() string { return sinkNameAPI }

func (s *APISink) MaxAttempts() int { return positive(s.Attempts, defaultAttempts) }

func (s *APISink) Deliver(ctx context.Context, ev types.Event) error {
	payload := types.APIPayload{
		IPAddress: optional(ev.IP),
		Msg:       optional(ev.Message),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal api payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, durationOr(s.Timeout, defaultTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build api request: %w", err)
	}
	req.Header.Set("Authorization", s.Key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("From", s.FromPrefix+fromSuffix)
	req.Header.Set("User-Agent", userAgent)

	resp, err := clientOrDefault(s.HTTPClient).Do(req)
	if err != nil {
		return fmt.Errorf("post api: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if (resp.StatusCode < 200 || resp.StatusCode >= 300) && s.Logger != nil {
		s.Logger.Printf("notify: api answered %s; treating as delivered", resp.Status)
	}
	return nil
}

// WebhookSink posts {"content"} to a chat webhook. Only 200 and 204 count as success.
type WebhookSink struct {
	URL        string
	Timeout    time.Duration
	Attempts   int
	HTTPClient *http.Client
}

func (s *WebhookSink) Name() string { return sinkNameWebhook }

func (s *WebhookSink) MaxAttempts() int { return positive(s.Attempts, defaultAttempts) }

func (s *WebhookSink) Deliver(ctx context.Context, ev types.Event) error {
	data, err := json.Marshal(types.WebhookPayload{Content: ev.Message})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, durationOr(s.Timeout, defaultTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := clientOrDefault(s.HTTPClient).Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("%w: webhook non-2xx (%d): %s", ErrRejected, resp.StatusCode, prefix(string(body), bodyPrefixBytes))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func clientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}

var (
	_ Sink = (*APISink)(nil)
	_ Sink = (*WebhookSink)(nil)
)
