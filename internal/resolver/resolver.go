// Package resolver discovers the public address of the link by asking a pool
// of "what is my IP" providers.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/pingsantohq/wanwatch/internal/metrics"
	"github.com/pingsantohq/wanwatch/internal/roster"
	"github.com/pingsantohq/wanwatch/pkg/types"
)

const (
	defaultTimeout = 3 * time.Second
	maxBodyBytes   = 64 << 10
	userAgent      = "wanwatch/1.0"
)

var (
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrNoAddress             = errors.New("no address in response")
)

type Config struct {
	Providers []string
	// Timeout bounds each provider request.
	Timeout time.Duration
}

// Dependencies allow test overrides for HTTP client, randomness, and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
	// Intn picks a provider index in [0, n).
	Intn    func(n int) int
	Backoff Backoff
	Metrics metrics.ResolveRecorder
}

type Resolver struct {
	providers  []string
	timeout    time.Duration
	httpClient *http.Client
	logger     *log.Logger
	intn       func(int) int
	backoff    Backoff
	metrics    metrics.ResolveRecorder
}

func New(cfg Config, deps Dependencies) (*Resolver, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	intn := deps.Intn
	if intn == nil {
		intn = rand.Intn
	}
	backoff := deps.Backoff
	if backoff == nil {
		backoff = NoBackoff{}
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.NoopResolveRecorder{}
	}
	return &Resolver{
		providers:  append([]string(nil), cfg.Providers...),
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
		intn:       intn,
		backoff:    backoff,
		metrics:    rec,
	}, nil
}

// Resolve keeps asking randomly chosen providers until one returns a valid
// address. It only fails when ctx is done.
func (r *Resolver) Resolve(ctx context.Context) (types.ResolvedAddress, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return types.ResolvedAddress{}, err
		}

		provider := r.providers[r.intn(len(r.providers))]
		ip, err := r.FetchOnce(ctx, provider)
		if err == nil {
			r.metrics.ObserveResolve(metrics.ResolveOK)
			return types.ResolvedAddress{Provider: provider, IP: ip}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.ResolvedAddress{}, ctxErr
		}

		if errors.Is(err, roster.ErrInvalidAddress) {
			r.metrics.ObserveResolve(metrics.ResolveInvalid)
		} else {
			r.metrics.ObserveResolve(metrics.ResolveError)
		}
		r.logger.Printf("resolver: provider %s failed (attempt %d): %v", provider, attempt, err)

		if err := r.backoff.Wait(ctx, attempt); err != nil {
			return types.ResolvedAddress{}, err
		}
	}
}

// FetchOnce queries a single provider. JSON bodies must carry an "origin"
// field; text/plain bodies are the address itself.
func (r *Resolver) FetchOnce(ctx context.Context, provider string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, provider, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	var candidate string
	if strings.HasPrefix(contentType, "application/json") {
		var payload struct {
			Origin string `json:"origin"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			candidate = strings.TrimSpace(payload.Origin)
		}
	}
	if candidate == "" && strings.HasPrefix(contentType, "text/plain") {
		candidate = strings.TrimSpace(string(body))
	}
	if candidate == "" {
		if !strings.HasPrefix(contentType, "application/json") && !strings.HasPrefix(contentType, "text/plain") {
			return "", fmt.Errorf("%w: %q", ErrUnexpectedContentType, contentType)
		}
		return "", ErrNoAddress
	}

	if !roster.ValidIP(candidate) {
		return "", fmt.Errorf("%w: %q", roster.ErrInvalidAddress, truncate(candidate, 64))
	}
	return candidate, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
