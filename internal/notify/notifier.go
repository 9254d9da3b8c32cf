// Package notify delivers monitor events to the API and webhook sinks with a
// bounded number of attempts. Delivery is best effort: after the last attempt
// the event is dropped and only the log records it.
package notify

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pingsantohq/wanwatch/internal/metrics"
	"github.com/pingsantohq/wanwatch/pkg/types"
)

const defaultRetryDelay = time.Second

type APIConfig struct {
	URL         string
	Key         string
	FromPrefix  string
	Timeout     time.Duration
	MaxAttempts int
}

type WebhookConfig struct {
	URL         string
	Timeout     time.Duration
	MaxAttempts int
}

// Config selects the sinks. A sink with an empty URL is not configured.
type Config struct {
	API     APIConfig
	Webhook WebhookConfig
	// RetryDelay is the fixed pause between attempts; negative disables it.
	RetryDelay time.Duration
}

// Dependencies allow test overrides for HTTP client, clock, and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
	Metrics    metrics.NotifyRecorder
	Now        func() time.Time
}

type Notifier struct {
	api        Sink
	webhook    Sink
	retryDelay time.Duration
	logger     *log.Logger
	metrics    metrics.NotifyRecorder
	now        func() time.Time
}

func New(cfg Config, deps Dependencies) *Notifier {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.NoopNotifyRecorder{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = defaultRetryDelay
	}
	if delay < 0 {
		delay = 0
	}

	n := &Notifier{
		retryDelay: delay,
		logger:     logger,
		metrics:    rec,
		now:        now,
	}
	if cfg.API.URL != "" {
		n.api = &APISink{
			URL:        cfg.API.URL,
			Key:        cfg.API.Key,
			FromPrefix: cfg.API.FromPrefix,
			Timeout:    cfg.API.Timeout,
			Attempts:   cfg.API.MaxAttempts,
			HTTPClient: deps.HTTPClient,
			Logger:     logger,
		}
	}
	if cfg.Webhook.URL != "" {
		n.webhook = &WebhookSink{
			URL:        cfg.Webhook.URL,
			Timeout:    cfg.Webhook.Timeout,
			Attempts:   cfg.Webhook.MaxAttempts,
			HTTPClient: deps.HTTPClient,
		}
	}
	return n
}

// Sinks returns the configured sinks, API first.
func (n *Notifier) Sinks() []Sink {
	sinks := make([]Sink, 0, 2)
	if n.api != nil {
		sinks = append(sinks, n.api)
	}
	if n.webhook != nil {
		sinks = append(sinks, n.webhook)
	}
	return sinks
}

// Broadcast sends the event to every configured sink.
func (n *Notifier) Broadcast(ctx context.Context, ev types.Event) {
	for _, sink := range n.Sinks() {
		n.Notify(ctx, sink, ev)
	}
}

// Report sends the event to the API sink only.
func (n *Notifier) Report(ctx context.Context, ev types.Event) {
	if n.api != nil {
		n.Notify(ctx, n.api, ev)
	}
}

// Heartbeat pings the API sink with the current address and no message.
func (n *Notifier) Heartbeat(ctx context.Context, ip string) {
	n.Report(ctx, types.Event{Type: types.EventHeartbeat, Timestamp: n.now().UTC(), IP: ip})
}

// Started announces a new monitor run. The API sink only gets the bare
// address, the webhook gets the message.
func (n *Notifier) Started(ctx context.Context, ev types.Event) {
	if n.api != nil {
		n.Notify(ctx, n.api, types.Event{Type: ev.Type, Timestamp: ev.Timestamp, IP: ev.IP})
	}
	if n.webhook != nil {
		n.Notify(ctx, n.webhook, ev)
	}
}

// Notify tries sink up to its MaxAttempts, stopping at the first success.
// Failures are logged and never returned.
func (n *Notifier) Notify(ctx context.Context, sink Sink, ev types.Event) {
	if sink == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = n.now().UTC()
	}
	limit := sink.MaxAttempts()
	for attempt := 1; attempt <= limit; attempt++ {
		err := sink.Deliver(ctx, ev)
		if err == nil {
			n.metrics.ObserveDelivery(sink.Name(), true)
			return
		}
		n.logger.Printf("notify: %s attempt %d/%d failed: %v", sink.Name(), attempt, limit, err)
		if attempt == limit {
			break
		}
		if !n.pause(ctx) {
			break
		}
	}
	n.metrics.ObserveDelivery(sink.Name(), false)
	n.logger.Printf("notify: %s delivery abandoned (%s)", sink.Name(), ev.Type)
}

func (n *Notifier) pause(ctx context.Context) bool {
	if n.retryDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(n.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
