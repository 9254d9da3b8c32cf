package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, s Status) string {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	NewANSI(&buf).Render(s)
	return buf.String()
}

func TestRenderAtPrimary(t *testing.T) {
	out := render(t, Status{
		Version:   "1.4.0",
		Provider:  "https://ifconfig.me/ip",
		IP:        "1.1.1.1",
		NextCheck: 42 * time.Second,
	})

	require.Contains(t, out, clearScreen)
	require.Contains(t, out, "VERSION: 1.4.0\n")
	require.Contains(t, out, "PROVIDER: https://ifconfig.me/ip\n")
	require.Contains(t, out, "WAN ADDRESS: 1.1.1.1\n")
	require.Contains(t, out, "Next check in 42 seconds\n")
	require.NotContains(t, out, "TEST MODE!")
	require.NotContains(t, out, "outlet")
	require.NotContains(t, out, "Latest Log Entry")
}

func TestRenderCountdownAndLog(t *testing.T) {
	out := render(t, Status{
		TestMode:    true,
		IP:          "2.2.2.2",
		Remediation: true,
		ResetIn:     89500 * time.Millisecond,
		NextCheck:   time.Second,
		LastLog:     "wanwatch 2024/01/01 00:00:00 changed",
	})

	require.Contains(t, out, "TEST MODE!")
	require.Contains(t, out, "Seconds until outlet reset is 90\n")
	require.Contains(t, out, "Latest Log Entry Below:\nwanwatch 2024/01/01 00:00:00 changed\n")
}

func TestRenderLimitReached(t *testing.T) {
	out := render(t, Status{IP: "2.2.2.2", Remediation: true, LimitReached: true})
	require.Contains(t, out, "Outlet reset limit has been reached.")
	require.NotContains(t, out, "Seconds until")
	require.Contains(t, out, "Next check in 0 seconds")
}

func TestDiscardRendersNothing(t *testing.T) {
	Discard.Render(Status{IP: "1.1.1.1"})
}
