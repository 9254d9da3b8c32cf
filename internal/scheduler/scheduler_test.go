package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pingsantohq/wanwatch/internal/console"
	"github.com/pingsantohq/wanwatch/internal/remediation"
	"github.com/pingsantohq/wanwatch/internal/roster"
	"github.com/pingsantohq/wanwatch/pkg/types"
)

const provider = "https://ip.example.test"

type scriptedResolver struct {
	ips []string
	i   int
}

func (r *scriptedResolver) Resolve(ctx context.Context) (types.ResolvedAddress, error) {
	if err := ctx.Err(); err != nil {
		return types.ResolvedAddress{}, err
	}
	ip := r.ips[r.i]
	if r.i < len(r.ips)-1 {
		r.i++
	}
	return types.ResolvedAddress{Provider: provider, IP: ip}, nil
}

type sent struct {
	kind string
	ev   types.Event
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) record(kind string, ev types.Event) {
	n.mu.Lock()
	n.sent = append(n.sent, sent{kind: kind, ev: ev})
	n.mu.Unlock()
}

func (n *recordingNotifier) Started(ctx context.Context, ev types.Event)   { n.record("started", ev) }
func (n *recordingNotifier) Broadcast(ctx context.Context, ev types.Event) { n.record("broadcast", ev) }
func (n *recordingNotifier) Report(ctx context.Context, ev types.Event)    { n.record("report", ev) }
func (n *recordingNotifier) Heartbeat(ctx context.Context, ip string) {
	n.record("heartbeat", types.Event{Type: types.EventHeartbeat, IP: ip})
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.kind
	}
	return out
}

type countingOutlet struct{ calls int }

func (o *countingOutlet) PowerCycle(ctx context.Context) (string, error) {
	o.calls++
	return "<ok/>", nil
}

type captureCall struct{ gateway, router string }

type fakeCapturer struct{ calls []captureCall }

func (c *fakeCapturer) Capture(ctx context.Context, gateway, router string) ([]string, error) {
	c.calls = append(c.calls, captureCall{gateway, router})
	return []string{"gateway.txt"}, nil
}

type fakeObserver struct {
	errs      []error
	away      bool
	exhausted bool
}

func (o *fakeObserver) ObserveCycle(ts time.Time, ip string, err error) {
	o.errs = append(o.errs, err)
}

func (o *fakeObserver) ObserveRemediation(away bool, since time.Time, exhausted bool) {
	o.away = away
	o.exhausted = exhausted
}

type harness struct {
	sched    *Scheduler
	resolver *scriptedResolver
	notifier *recordingNotifier
	outlet   *countingOutlet
	capturer *fakeCapturer
	observer *fakeObserver
	now      *time.Time
}

func newHarness(t *testing.T, ips ...string) *harness {
	t.Helper()
	r, err := roster.New("1.1.1.1", []string{"2.2.2.2", "3.3.3.3"}, []string{"Main", "Backup", "Cellular"})
	require.NoError(t, err)

	current := time.Unix(0, 0).UTC()
	h := &harness{
		resolver: &scriptedResolver{ips: ips},
		notifier: &recordingNotifier{},
		outlet:   &countingOutlet{},
		capturer: &fakeCapturer{},
		observer: &fakeObserver{},
		now:      &current,
	}
	ctrl := remediation.New(remediation.Config{Grace: 5 * time.Minute, MaxAttempts: 2, Enabled: true}, remediation.Dependencies{
		Outlet:   h.outlet,
		Reporter: h.notifier,
	})
	h.sched, err = New(Config{Location: "HQ", Interval: time.Minute, PrimaryGateway: "10.0.0.1"}, Dependencies{
		Roster:      r,
		Resolver:    h.resolver,
		Notifier:    h.notifier,
		Remediation: ctrl,
	},
		WithNow(func() time.Time { return *h.now }),
		WithCapturer(h.capturer),
		WithObserver(h.observer),
		WithTickResolution(time.Millisecond),
	)
	require.NoError(t, err)
	return h
}

func (h *harness) advance(d time.Duration) { *h.now = h.now.Add(d) }

func TestFirstCycleAdoptsAddress(t *testing.T) {
	h := newHarness(t, "1.1.1.1")
	require.NoError(t, h.sched.Cycle(context.Background()))

	st := h.sched.State()
	require.Equal(t, "1.1.1.1", st.IP)
	require.Equal(t, provider, st.Provider)
	require.False(t, st.Remediation.Away)
	require.Equal(t, []string{"started"}, h.notifier.kinds())
	require.Equal(t, "IP Monitor Started, IP address is 1.1.1.1", h.notifier.sent[0].ev.Message)
	require.Empty(t, h.capturer.calls)
}

func TestFirstCycleOffPrimaryStartsExcursion(t *testing.T) {
	h := newHarness(t, "2.2.2.2")
	require.NoError(t, h.sched.Cycle(context.Background()))

	st := h.sched.State()
	require.True(t, st.Remediation.Away)
	require.Equal(t, *h.now, st.Remediation.Since)
	require.True(t, h.observer.away)
}

func TestChangeToSecondaryNotifiesAndCaptures(t *testing.T) {
	h := newHarness(t, "1.1.1.1", "2.2.2.2")
	ctx := context.Background()
	require.NoError(t, h.sched.Cycle(ctx))
	h.advance(time.Minute)
	require.NoError(t, h.sched.Cycle(ctx))

	require.Equal(t, []string{"started", "broadcast"}, h.notifier.kinds())
	msg := h.notifier.sent[1].ev.Message
	require.Equal(t, "HQ : 2.2.2.2 : Backup : Provider was "+provider, msg)
	require.Contains(t, msg, "Backup")

	st := h.sched.State()
	require.Equal(t, "secondary", st.Kind)
	require.True(t, st.Remediation.Away)
	require.Equal(t, []captureCall{{"10.0.0.1", "1.1.1.1"}}, h.capturer.calls)
}

func TestChangeToUnknownAddress(t *testing.T) {
	h := newHarness(t, "1.1.1.1", "8.8.8.8")
	ctx := context.Background()
	require.NoError(t, h.sched.Cycle(ctx))
	require.NoError(t, h.sched.Cycle(ctx))

	require.Equal(t, "HQ : Dynamic/Unknown IP : Provider was "+provider, h.notifier.sent[1].ev.Message)
}

func TestRemediationAcrossCycles(t *testing.T) {
	h := newHarness(t, "1.1.1.1", "2.2.2.2")
	ctx := context.Background()
	require.NoError(t, h.sched.Cycle(ctx))
	require.NoError(t, h.sched.Cycle(ctx))

	for i := 0; i < 12; i++ {
		h.advance(time.Minute)
		require.NoError(t, h.sched.Cycle(ctx))
	}

	require.Equal(t, 2, h.outlet.calls)
	require.Equal(t, 2, h.sched.State().Remediation.Attempts)
	require.True(t, h.observer.exhausted)
	require.Equal(t, remediation.PhaseLimitReached.String(), h.sched.Snapshot().Phase)
}

func TestReturnToPrimaryResetsRemediation(t *testing.T) {
	h := newHarness(t, "1.1.1.1", "2.2.2.2", "2.2.2.2", "1.1.1.1")
	ctx := context.Background()
	require.NoError(t, h.sched.Cycle(ctx))
	require.NoError(t, h.sched.Cycle(ctx))
	h.advance(6 * time.Minute)
	require.NoError(t, h.sched.Cycle(ctx))
	require.Equal(t, 1, h.sched.State().Remediation.Attempts)

	require.NoError(t, h.sched.Cycle(ctx))
	st := h.sched.State()
	require.Equal(t, remediation.State{}, st.Remediation)
	require.Equal(t, "primary", st.Kind)
	require.Len(t, h.capturer.calls, 1)
	require.False(t, h.observer.away)
}

func TestInvalidAddressAbortsCycle(t *testing.T) {
	h := newHarness(t, "1.1.1.1", "not-an-ip")
	ctx := context.Background()
	require.NoError(t, h.sched.Cycle(ctx))
	require.NoError(t, h.sched.Cycle(ctx))

	require.Equal(t, "1.1.1.1", h.sched.State().IP)
	require.Equal(t, []string{"started"}, h.notifier.kinds())
	require.Len(t, h.observer.errs, 2)
	require.ErrorIs(t, h.observer.errs[1], roster.ErrInvalidAddress)
}

type recordingRenderer struct {
	mu     sync.Mutex
	frames []console.Status
}

func (r *recordingRenderer) Render(s console.Status) {
	r.mu.Lock()
	r.frames = append(r.frames, s)
	r.mu.Unlock()
}

func TestIdleCountsDownInterval(t *testing.T) {
	h := newHarness(t, "2.2.2.2")
	renderer := &recordingRenderer{}
	WithRenderer(renderer)(h.sched)
	h.sched.cfg.Interval = 3 * time.Second

	require.NoError(t, h.sched.Cycle(context.Background()))
	require.NoError(t, h.sched.Idle(context.Background()))

	require.Len(t, renderer.frames, 3)
	require.Equal(t, 3*time.Second, renderer.frames[0].NextCheck)
	require.Equal(t, time.Second, renderer.frames[2].NextCheck)
	require.Equal(t, "2.2.2.2", renderer.frames[0].IP)
	require.True(t, renderer.frames[0].Remediation)
	require.Equal(t, 5*time.Minute, renderer.frames[0].ResetIn)
}

func TestIdleStopsOnCancel(t *testing.T) {
	h := newHarness(t, "1.1.1.1")
	WithTickResolution(time.Hour)(h.sched)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, h.sched.Idle(ctx), context.Canceled)
}

func TestRunSendsHeartbeatAfterInterval(t *testing.T) {
	h := newHarness(t, "1.1.1.1")
	h.sched.cfg.Interval = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sched.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, k := range h.notifier.kinds() {
			if k == "heartbeat" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	require.True(t, errors.Is(err, context.Canceled))
	kinds := h.notifier.kinds()
	require.Equal(t, "started", kinds[0])
	require.Equal(t, "heartbeat", kinds[1])
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Dependencies{})
	require.Error(t, err)
}
