package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStoreCounters(t *testing.T) {
	s := NewStore()
	s.ObserveResolve(ResolveOK)
	s.ObserveResolve(ResolveOK)
	s.ObserveResolve(ResolveInvalid)
	s.ObserveDelivery("api", true)
	s.ObserveDelivery("webhook", false)
	s.ObserveSignal(SignalSent)
	s.ObserveAttempts(2)
	s.ObserveAway(true)
	s.ObserveReadiness(false)

	require.Equal(t, 2.0, testutil.ToFloat64(s.resolveAttempts.WithLabelValues(ResolveOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(s.resolveAttempts.WithLabelValues(ResolveInvalid)))
	require.Equal(t, 1.0, testutil.ToFloat64(s.notifications.WithLabelValues("webhook", "abandoned")))
	require.Equal(t, 2.0, testutil.ToFloat64(s.remediationAttempts))
	require.Equal(t, 1.0, testutil.ToFloat64(s.awayFromPrimary))
	require.Equal(t, 0.0, testutil.ToFloat64(s.ready))

	s.ObserveAway(false)
	require.Equal(t, 0.0, testutil.ToFloat64(s.awayFromPrimary))
}

func TestHandlerExposesMetrics(t *testing.T) {
	s := NewStore()
	s.ObserveChange("secondary")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), `wanwatch_address_changes_total{kind="secondary"} 1`), string(body))
	require.Contains(t, string(body), "wanwatch_remediation_attempts 0")
}
