package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_NilSafe(t *testing.T) {
	var mc *MetricsCollector
	assert.NotPanics(t, func() {
		mc.RecordRequest("openai", 200, time.Millisecond)
		mc.RecordAttempt("openai", "pool", 2, 500)
		mc.RecordCascadeLookup("env")
		mc.RecordCacheError("get")
		mc.RecordRotation(true)
		mc.RecordTokenCacheHit()
		mc.RecordTokenMint(false)
		mc.RelayOpened()()
	})
	assert.Empty(t, mc.Stats())
}

func TestMetricsCollector_Counters(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRequest("vertex", 200, time.Second)
	mc.RecordRequest("vertex", 502, time.Second)
	mc.RecordAttempt("vertex", "pool", 1, 500)
	mc.RecordAttempt("vertex", "pool", 2, 200)
	mc.RecordRotation(false)
	mc.RecordRotation(true)
	mc.RecordCascadeLookup("cache")

	stats := mc.Stats()
	assert.Equal(t, int64(2), stats["requests"])
	assert.Equal(t, int64(1), stats["successes"])
	assert.Equal(t, int64(1), stats["retries"])
	assert.Equal(t, int64(2), stats["pool_rotations"])
	assert.Equal(t, int64(1), stats["rotation_errors"])

	assert.Equal(t, 1.0, testutil.ToFloat64(mc.rotationTotal.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.cascadeTotal.WithLabelValues("cache")))
}

func TestMetricsCollector_RelayGauge(t *testing.T) {
	mc := NewMetricsCollector()
	done := mc.RelayOpened()
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.wsRelayActive))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(mc.wsRelayActive))
	assert.Equal(t, int64(1), mc.Stats()["websocket_relays"])
}

func TestMetricsCollector_Handler(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordRequest("native", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `llm_relay_requests_total{code="200",strategy="native"} 1`)
}
