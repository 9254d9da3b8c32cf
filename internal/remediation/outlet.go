package remediation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	controlPath          = "/cgi-bin/control2.cgi"
	defaultOutletTimeout = 10 * time.Second
	maxOutletBody        = 64 << 10
)

// HTTPOutlet drives a network power outlet through its CGI control endpoint.
type HTTPOutlet struct {
	BaseURL    string
	Username   string
	Password   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// PowerCycle asks outlet 1 to cycle power (control=3) and returns the device's XML reply.
func (o *HTTPOutlet) PowerCycle(ctx context.Context) (string, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultOutletTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.controlURL(), nil)
	if err != nil {
		return "", fmt.Errorf("build outlet request: %w", err)
	}

	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("outlet request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOutletBody))
	if err != nil {
		return "", fmt.Errorf("read outlet response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("outlet answered %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// The device expects its parameters in this exact order.
func (o *HTTPOutlet) controlURL() string {
	return fmt.Sprintf("%s%s?user=%s&passwd=%s&target=1&control=3",
		strings.TrimRight(o.BaseURL, "/"),
		controlPath,
		url.QueryEscape(o.Username),
		url.QueryEscape(o.Password),
	)
}

var _ Outlet = (*HTTPOutlet)(nil)
