package health

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pingsantohq/wanwatch/internal/metrics"
)

const (
	defaultStaleAfter = 3 * time.Minute
	staleIntervals    = 3
)

const (
	categoryResolvePending       = "RESOLVE_PENDING"
	categoryResolveStale         = "RESOLVE_STALE"
	categoryResolveError         = "RESOLVE_ERROR"
	categoryAwayFromPrimary      = "AWAY_FROM_PRIMARY"
	categoryRemediationExhausted = "REMEDIATION_EXHAUSTED"
)

const (
	severityInfo     = "info"
	severityWarning  = "warning"
	severityCritical = "critical"
)

type Category struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

// Report is the outcome of one readiness evaluation.
type Report struct {
	Ready      bool       `json:"ready"`
	Reasons    []string   `json:"reasons,omitempty"`
	Categories []Category `json:"categories,omitempty"`
}

// Checker evaluates readiness conditions for the monitor.
type Checker struct {
	recorder   metrics.ReadinessRecorder
	staleAfter time.Duration

	mu          sync.RWMutex
	lastSuccess time.Time
	lastErr     string
	lastErrAt   time.Time
	awaySince   time.Time
	away        bool
	exhausted   bool
	lastAddress string
}

// NewChecker builds a checker that marks resolution stale after three poll
// intervals without a successful cycle.
func NewChecker(recorder metrics.ReadinessRecorder, interval time.Duration) *Checker {
	staleAfter := defaultStaleAfter
	if interval > 0 {
		staleAfter = staleIntervals * interval
	}
	if recorder == nil {
		recorder = metrics.NoopReadinessRecorder{}
	}
	return &Checker{
		recorder:   recorder,
		staleAfter: staleAfter,
	}
}

// ObserveCycle records the outcome of a poll cycle.
func (c *Checker) ObserveCycle(ts time.Time, ip string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err.Error()
		c.lastErrAt = ts
		return
	}
	c.lastSuccess = ts
	c.lastAddress = ip
	c.lastErr = ""
	c.lastErrAt = time.Time{}
}

// ObserveRemediation records whether the link is away from the primary
// address and whether the reset budget for the excursion is spent.
func (c *Checker) ObserveRemediation(away bool, since time.Time, exhausted bool) {
	c.mu.Lock()
	c.away = away
	c.awaySince = since
	c.exhausted = away && exhausted
	c.mu.Unlock()
}

// Ready evaluates all readiness conditions and returns the overall status and reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	r := c.Evaluate(now)
	return r.Ready, r.Reasons
}

func (c *Checker) Evaluate(now time.Time) Report {
	var r Report
	add := func(name, severity, reason string) {
		r.Reasons = append(r.Reasons, reason)
		r.Categories = append(r.Categories, Category{Name: name, Severity: severity})
	}

	c.mu.RLock()
	lastSuccess := c.lastSuccess
	lastErr := c.lastErr
	lastErrAt := c.lastErrAt
	away := c.away
	awaySince := c.awaySince
	exhausted := c.exhausted
	address := c.lastAddress
	c.mu.RUnlock()

	if lastSuccess.IsZero() {
		add(categoryResolvePending, severityInfo, "wan address not yet resolved")
	} else if now.Sub(lastSuccess) > c.staleAfter {
		add(categoryResolveStale, severityWarning,
			fmt.Sprintf("wan address resolution stale (%s)", now.Sub(lastSuccess).Round(time.Second)))
	}

	if lastErr != "" && now.Sub(lastErrAt) <= c.staleAfter {
		add(categoryResolveError, severityWarning, fmt.Sprintf("last cycle failed: %s", lastErr))
	}

	if away {
		reason := fmt.Sprintf("away from primary address (current %s)", address)
		if !awaySince.IsZero() {
			reason = fmt.Sprintf("away from primary address for %s (current %s)", now.Sub(awaySince).Round(time.Second), address)
		}
		add(categoryAwayFromPrimary, severityWarning, reason)
	}
	if exhausted {
		add(categoryRemediationExhausted, severityCritical, "outlet reset limit reached")
	}

	r.Ready = len(r.Reasons) == 0
	c.recorder.ObserveReadiness(r.Ready)
	return r
}

// Summary joins the reasons for log output.
func (r Report) Summary() string {
	if r.Ready {
		return "ready"
	}
	return strings.Join(r.Reasons, "; ")
}
