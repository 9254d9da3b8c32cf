package remediation

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pingsantohq/wanwatch/internal/metrics"
	"github.com/pingsantohq/wanwatch/pkg/types"
)

type Phase int

const (
	PhaseAtPrimary Phase = iota
	PhaseAway
	PhaseLimitReached
)

func (p Phase) String() string {
	switch p {
	case PhaseAway:
		return "away"
	case PhaseLimitReached:
		return "limit_reached"
	default:
		return "at_primary"
	}
}

// State is the per-excursion bookkeeping owned by the poll loop.
type State struct {
	Away        bool      `json:"away"`
	Since       time.Time `json:"since,omitempty"`
	Attempts    int       `json:"attempts"`
	ExcursionID string    `json:"excursion_id,omitempty"`
}

func (s State) Phase(maxAttempts int) Phase {
	switch {
	case !s.Away:
		return PhaseAtPrimary
	case s.Attempts >= maxAttempts:
		return PhaseLimitReached
	default:
		return PhaseAway
	}
}

// Outlet power-cycles the controlled device and returns its raw response.
type Outlet interface {
	PowerCycle(ctx context.Context) (string, error)
}

// Reporter receives remediation outcomes. Delivery is best effort.
type Reporter interface {
	Report(ctx context.Context, ev types.Event)
}

type Config struct {
	Grace       time.Duration
	MaxAttempts int
	// Enabled is false when no outlet is configured; Step then never fires.
	Enabled bool
	// TestMode counts and reports attempts without touching the outlet.
	TestMode bool
}

type Dependencies struct {
	Outlet   Outlet
	Reporter Reporter
	Logger   *log.Logger
	Metrics  metrics.MonitorRecorder
	NewID    func() string
}

type Controller struct {
	cfg      Config
	outlet   Outlet
	reporter Reporter
	logger   *log.Logger
	metrics  metrics.MonitorRecorder
	newID    func() string
}

func New(cfg Config, deps Dependencies) *Controller {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if deps.Outlet == nil {
		cfg.Enabled = false
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.NoopMonitorRecorder{}
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Controller{
		cfg:      cfg,
		outlet:   deps.Outlet,
		reporter: deps.Reporter,
		logger:   logger,
		metrics:  rec,
		newID:    newID,
	}
}

func (c *Controller) MaxAttempts() int { return c.cfg.MaxAttempts }

func (c *Controller) Enabled() bool { return c.cfg.Enabled }

// Leave starts an excursion at now. An excursion already in progress keeps
// its start time and attempt count.
func (c *Controller) Leave(st State, now time.Time) State {
	if st.Away {
		return st
	}
	st = State{Away: true, Since: now, ExcursionID: c.newID()}
	c.logger.Printf("remediation: left primary, excursion %s started", st.ExcursionID)
	c.metrics.ObserveAway(true)
	c.metrics.ObserveAttempts(0)
	return st
}

// Return ends any excursion unconditionally.
func (c *Controller) Return(st State) State {
	if st.Away {
		c.logger.Printf("remediation: back on primary after %d reset attempt(s), excursion %s closed", st.Attempts, st.ExcursionID)
	}
	c.metrics.ObserveAway(false)
	c.metrics.ObserveAttempts(0)
	return State{}
}

// Due reports whether a reset signal would be sent at now.
func (c *Controller) Due(st State, now time.Time) bool {
	return c.cfg.Enabled &&
		st.Away &&
		st.Attempts < c.cfg.MaxAttempts &&
		!now.Before(st.Since.Add(c.cfg.Grace))
}

// Remaining is the time left until the grace period ends, never negative.
func (c *Controller) Remaining(st State, now time.Time) time.Duration {
	if !st.Away {
		return 0
	}
	left := st.Since.Add(c.cfg.Grace).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Step runs one remediation decision for a cycle in which the address did not
// change. ip is the current address, used only for reporting.
func (c *Controller) Step(ctx context.Context, st State, now time.Time, ip string) State {
	if !st.Away || !c.cfg.Enabled {
		return st
	}
	if st.Attempts >= c.cfg.MaxAttempts {
		c.logger.Printf("remediation: outlet reset limit has been reached (excursion %s)", st.ExcursionID)
		c.metrics.ObserveSignal(metrics.SignalLimited)
		return st
	}
	if !c.Due(st, now) {
		return st
	}

	st.Attempts++
	c.metrics.ObserveAttempts(st.Attempts)
	c.logger.Printf("remediation: sending reset signal to outlet (attempt %d/%d, excursion %s)", st.Attempts, c.cfg.MaxAttempts, st.ExcursionID)
	c.report(ctx, now, ip, "Sending Reset signal to outlet.")

	if c.cfg.TestMode {
		c.metrics.ObserveSignal(metrics.SignalTest)
		return st
	}

	body, err := c.outlet.PowerCycle(ctx)
	if err != nil {
		c.metrics.ObserveSignal(metrics.SignalFailed)
		c.logger.Printf("remediation: reset signal failed: %v", err)
		c.report(ctx, now, ip, "Error sending reset signal. "+err.Error())
		return st
	}
	c.metrics.ObserveSignal(metrics.SignalSent)
	c.report(ctx, now, ip, "XML output from outlet:\n"+body)
	return st
}

func (c *Controller) report(ctx context.Context, now time.Time, ip, msg string) {
	if c.reporter == nil {
		return
	}
	c.reporter.Report(ctx, types.Event{
		Type:      types.EventRemediation,
		Timestamp: now.UTC(),
		IP:        ip,
		Message:   msg,
	})
}
