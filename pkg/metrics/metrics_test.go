package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsStateMachine(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveAcquire("station", nil)
	c.ObserveAcquire("access-point", errors.New("boom"))
	c.ObserveConnectFailure("timeout")
	c.ObserveReset()
	c.ObserveReset()
	c.SetMode("access-point", "station", "access-point")
	c.SetReady(true)
	c.ObserveReclaim(4096)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Acquisitions.WithLabelValues("station", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Acquisitions.WithLabelValues("access-point", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ConnectFailures.WithLabelValues("timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Resets))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Mode.WithLabelValues("station")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Mode.WithLabelValues("access-point")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Ready))
	assert.Equal(t, 4096.0, testutil.ToFloat64(c.HeapBytes))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveAcquire("station", nil)
		c.ObserveReset()
		c.ObserveCredentialUpdate(false)
		c.ObserveClockSync(true)
		c.SetReady(false)
		c.SetMode("station")
	})
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.ObserveProvisioningCycle()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.ProvisioningCycles))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveCredentialUpdate(true)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wlanboot_credential_updates_total{valid="true"} 1`)
}
