// Package scheduler drives the resolve, react and idle poll loop. One cycle
// completes before the next begins; only Snapshot is safe to call from other
// goroutines.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/pingsantohq/wanwatch/internal/console"
	"github.com/pingsantohq/wanwatch/internal/metrics"
	"github.com/pingsantohq/wanwatch/internal/remediation"
	"github.com/pingsantohq/wanwatch/internal/roster"
	"github.com/pingsantohq/wanwatch/pkg/types"
)

const (
	defaultInterval       = 60 * time.Second
	defaultTickResolution = time.Second
	countdownStep         = time.Second
)

type Resolver interface {
	Resolve(ctx context.Context) (types.ResolvedAddress, error)
}

type Notifier interface {
	Started(ctx context.Context, ev types.Event)
	Broadcast(ctx context.Context, ev types.Event)
	Heartbeat(ctx context.Context, ip string)
}

type Capturer interface {
	Capture(ctx context.Context, gateway, router string) ([]string, error)
}

// Observer is told about every cycle outcome; the readiness checker
// implements it.
type Observer interface {
	ObserveCycle(ts time.Time, ip string, err error)
	ObserveRemediation(away bool, since time.Time, exhausted bool)
}

type Config struct {
	Location       string
	Interval       time.Duration
	PrimaryGateway string
	Version        string
	TestMode       bool
}

type Dependencies struct {
	Roster      *roster.Roster
	Resolver    Resolver
	Notifier    Notifier
	Remediation *remediation.Controller
	Logger      *log.Logger
	// LastLog returns the most recent log line for the status view.
	LastLog func() string
}

// State is the monitor's memory between cycles.
type State struct {
	IP          string            `json:"ip,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	Label       string            `json:"label,omitempty"`
	LastCycle   time.Time         `json:"last_cycle,omitempty"`
	Remediation remediation.State `json:"remediation"`
}

// Snapshot is a point-in-time view for the status endpoint.
type Snapshot struct {
	State
	Phase       string        `json:"phase"`
	ResetIn     time.Duration `json:"reset_in_ns"`
	MaxAttempts int           `json:"max_attempts"`
	TestMode    bool          `json:"test_mode"`
	Location    string        `json:"location,omitempty"`
}

type Scheduler struct {
	cfg         Config
	roster      *roster.Roster
	resolver    Resolver
	notifier    Notifier
	remediation *remediation.Controller
	logger      *log.Logger
	lastLog     func() string

	tickResolution time.Duration
	now            func() time.Time
	renderer       console.Renderer
	capturer       Capturer
	metrics        metrics.MonitorRecorder
	observer       Observer

	mu    sync.Mutex
	state State
}

type Option func(*Scheduler)

func WithTickResolution(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickResolution = d
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRenderer(r console.Renderer) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.renderer = r
		}
	}
}

func WithCapturer(c Capturer) Option {
	return func(s *Scheduler) {
		s.capturer = c
	}
}

func WithMetrics(m metrics.MonitorRecorder) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

func New(cfg Config, deps Dependencies, opts ...Option) (*Scheduler, error) {
	if deps.Roster == nil || deps.Resolver == nil || deps.Notifier == nil || deps.Remediation == nil {
		return nil, fmt.Errorf("scheduler: roster, resolver, notifier and remediation are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	lastLog := deps.LastLog
	if lastLog == nil {
		lastLog = func() string { return "" }
	}
	s := &Scheduler{
		cfg:            cfg,
		roster:         deps.Roster,
		resolver:       deps.Resolver,
		notifier:       deps.Notifier,
		remediation:    deps.Remediation,
		logger:         logger,
		lastLog:        lastLog,
		tickResolution: defaultTickResolution,
		now:            time.Now,
		renderer:       console.Discard,
		metrics:        metrics.NoopMonitorRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run loops cycle, countdown and heartbeat until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.Cycle(ctx); err != nil {
			return err
		}
		if err := s.Idle(ctx); err != nil {
			return err
		}
		s.notifier.Heartbeat(ctx, s.State().IP)
	}
}

// Cycle resolves the WAN address once and reacts to it. It only returns an
// error when ctx is done.
func (s *Scheduler) Cycle(ctx context.Context) error {
	addr, err := s.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	if !roster.ValidIP(addr.IP) {
		s.logger.Printf("The IP address is invalid: %s", addr.IP)
		s.observe(now, fmt.Errorf("%w: %q", roster.ErrInvalidAddress, addr.IP))
		return nil
	}

	st := s.State()
	previous := st.IP
	cls := s.roster.Classify(addr.IP)
	st.Provider = addr.Provider
	st.LastCycle = now

	switch {
	case previous == "":
		s.adopt(&st, addr.IP, cls)
		if cls.Kind != roster.KindPrimary {
			st.Remediation = s.remediation.Leave(st.Remediation, now)
		}
		msg := "IP Monitor Started, IP address is " + addr.IP
		s.logger.Print(msg)
		s.setState(st)
		s.notifier.Started(ctx, types.Event{Type: types.EventStarted, Timestamp: now.UTC(), IP: addr.IP, Message: msg})

	case previous != addr.IP:
		if cls.Kind == roster.KindPrimary {
			st.Remediation = s.remediation.Return(st.Remediation)
		} else {
			st.Remediation = s.remediation.Leave(st.Remediation, now)
		}
		s.adopt(&st, addr.IP, cls)
		s.metrics.ObserveChange(cls.Kind.String())
		msg := fmt.Sprintf("%s : %s : Provider was %s", s.cfg.Location, cls.Describe(addr.IP), addr.Provider)
		s.logger.Print(msg)
		s.setState(st)
		s.notifier.Broadcast(ctx, types.Event{Type: types.EventChanged, Timestamp: now.UTC(), IP: addr.IP, Message: msg})
		if cls.Kind != roster.KindPrimary && s.cfg.PrimaryGateway != "" && s.capturer != nil {
			s.capture(ctx)
		}

	default:
		st.Remediation = s.remediation.Step(ctx, st.Remediation, now, st.IP)
		s.setState(st)
	}

	s.observe(now, nil)
	return nil
}

func (s *Scheduler) adopt(st *State, ip string, cls roster.Classification) {
	st.IP = ip
	st.Kind = cls.Kind.String()
	st.Label = cls.Label
}

func (s *Scheduler) capture(ctx context.Context) {
	paths, err := s.capturer.Capture(ctx, s.cfg.PrimaryGateway, s.roster.Primary())
	if err != nil {
		s.logger.Printf("gateway diagnostics failed: %v", err)
	}
	for _, p := range paths {
		s.logger.Printf("gateway diagnostics written to %s", p)
	}
}

func (s *Scheduler) observe(now time.Time, err error) {
	if s.observer == nil {
		return
	}
	st := s.State()
	s.observer.ObserveCycle(now, st.IP, err)
	exhausted := s.remediation.Enabled() && st.Remediation.Phase(s.remediation.MaxAttempts()) == remediation.PhaseLimitReached
	s.observer.ObserveRemediation(st.Remediation.Away, st.Remediation.Since, exhausted)
}

// Idle counts down one poll interval, redrawing the status view on every
// step. It returns ctx.Err() when interrupted.
func (s *Scheduler) Idle(ctx context.Context) error {
	ticker := time.NewTicker(s.tickResolution)
	defer ticker.Stop()

	for remaining := s.cfg.Interval; remaining > 0; remaining -= countdownStep {
		s.render(remaining)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Scheduler) render(remaining time.Duration) {
	st := s.State()
	now := s.now()
	phase := st.Remediation.Phase(s.remediation.MaxAttempts())
	s.renderer.Render(console.Status{
		Version:      s.cfg.Version,
		TestMode:     s.cfg.TestMode,
		Provider:     st.Provider,
		IP:           st.IP,
		Remediation:  st.Remediation.Away && s.remediation.Enabled(),
		ResetIn:      s.remediation.Remaining(st.Remediation, now),
		LimitReached: phase == remediation.PhaseLimitReached,
		NextCheck:    remaining,
		LastLog:      s.lastLog(),
	})
}

// State returns a copy of the current monitor state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scheduler) Snapshot() Snapshot {
	st := s.State()
	return Snapshot{
		State:       st,
		Phase:       st.Remediation.Phase(s.remediation.MaxAttempts()).String(),
		ResetIn:     s.remediation.Remaining(st.Remediation, s.now()),
		MaxAttempts: s.remediation.MaxAttempts(),
		TestMode:    s.cfg.TestMode,
		Location:    s.cfg.Location,
	}
}
