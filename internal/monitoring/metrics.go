// Package monitoring - metrics.go provides gateway counters.
//
// DESIGN: Counters live in two places:
//   - atomic fields:       cheap snapshot for logs and the /stats endpoint
//   - prometheus vectors:  labelled series exported on /metrics
//
// Every method is safe on a nil *MetricsCollector so components can run
// without metrics in tests.
package monitoring

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llm_relay"

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time
	registry  *prometheus.Registry

	// Request counters
	requests  atomic.Int64
	successes atomic.Int64
	retries   atomic.Int64

	// Cascade counters
	cascadeLookups atomic.Int64
	cacheErrors    atomic.Int64

	// Credential counters
	rotations       atomic.Int64
	rotationErrors  atomic.Int64
	tokenCacheHits  atomic.Int64
	tokenMints      atomic.Int64
	tokenMintErrors atomic.Int64

	wsRelays atomic.Int64

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attemptTotal    *prometheus.CounterVec
	cascadeTotal    *prometheus.CounterVec
	cacheErrorTotal *prometheus.CounterVec
	rotationTotal   *prometheus.CounterVec
	tokenTotal      *prometheus.CounterVec
	wsRelayActive   prometheus.Gauge
}

// NewMetricsCollector creates a collector registered on its own registry.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
}

// NewMetricsCollectorWithRegistry registers the gateway series on registry.
func NewMetricsCollectorWithRegistry(registry *prometheus.Registry) *MetricsCollector {
	mc := &MetricsCollector{
		startedAt: time.Now(),
		registry:  registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Inbound requests by strategy and final status code.",
		}, []string{"strategy", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time to first byte of the final response.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}, []string{"strategy"}),
		attemptTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_attempts_total",
			Help:      "Upstream attempts by strategy, credential source and status code.",
		}, []string{"strategy", "source", "code"}),
		cascadeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_lookups_total",
			Help:      "Config cascade reads by the tier that answered.",
		}, []string{"tier"}),
		cacheErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Swallowed regional cache errors by operation.",
		}, []string{"op"}),
		rotationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_rotations_total",
			Help:      "Pool credential selections; result=degraded when the counter increment failed.",
		}, []string{"result"}),
		tokenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gcp_tokens_total",
			Help:      "Cloud access token lookups by outcome.",
		}, []string{"outcome"}),
		wsRelayActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_relays_active",
			Help:      "Open realtime relays.",
		}),
	}
	registry.MustRegister(
		mc.requestTotal,
		mc.requestDuration,
		mc.attemptTotal,
		mc.cascadeTotal,
		mc.cacheErrorTotal,
		mc.rotationTotal,
		mc.tokenTotal,
		mc.wsRelayActive,
	)
	return mc
}

// RecordRequest records a finished inbound request.
func (mc *MetricsCollector) RecordRequest(strategy string, code int, d time.Duration) {
	if mc == nil {
		return
	}
	mc.requests.Add(1)
	if code >= 200 && code < 300 {
		mc.successes.Add(1)
	}
	mc.requestTotal.WithLabelValues(strategy, strconv.Itoa(code)).Inc()
	mc.requestDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordAttempt records one upstream attempt. attempt > 1 counts as a retry.
func (mc *MetricsCollector) RecordAttempt(strategy, source string, attempt, code int) {
	if mc == nil {
		return
	}
	if attempt > 1 {
		mc.retries.Add(1)
	}
	mc.attemptTotal.WithLabelValues(strategy, source, strconv.Itoa(code)).Inc()
}

// RecordCascadeLookup records which tier answered a cascade read.
func (mc *MetricsCollector) RecordCascadeLookup(tier string) {
	if mc == nil {
		return
	}
	mc.cascadeLookups.Add(1)
	mc.cascadeTotal.WithLabelValues(tier).Inc()
}

// RecordCacheError records a swallowed cache failure.
func (mc *MetricsCollector) RecordCacheError(op string) {
	if mc == nil {
		return
	}
	mc.cacheErrors.Add(1)
	mc.cacheErrorTotal.WithLabelValues(op).Inc()
}

// RecordRotation records a pool selection.
func (mc *MetricsCollector) RecordRotation(degraded bool) {
	if mc == nil {
		return
	}
	mc.rotations.Add(1)
	result := "ok"
	if degraded {
		mc.rotationErrors.Add(1)
		result = "degraded"
	}
	mc.rotationTotal.WithLabelValues(result).Inc()
}

// RecordTokenCacheHit records a cached cloud access token.
func (mc *MetricsCollector) RecordTokenCacheHit() {
	if mc == nil {
		return
	}
	mc.tokenCacheHits.Add(1)
	mc.tokenTotal.WithLabelValues("cache_hit").Inc()
}

// RecordTokenMint records a token exchange.
func (mc *MetricsCollector) RecordTokenMint(success bool) {
	if mc == nil {
		return
	}
	if !success {
		mc.tokenMintErrors.Add(1)
		mc.tokenTotal.WithLabelValues("mint_error").Inc()
		return
	}
	mc.tokenMints.Add(1)
	mc.tokenTotal.WithLabelValues("minted").Inc()
}

// RelayOpened marks a realtime relay as started; call the returned func when it ends.
func (mc *MetricsCollector) RelayOpened() func() {
	if mc == nil {
		return func() {}
	}
	mc.wsRelays.Add(1)
	mc.wsRelayActive.Inc()
	return mc.wsRelayActive.Dec
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time {
	if mc == nil {
		return time.Time{}
	}
	return mc.startedAt
}

// Stats returns current metrics as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	if mc == nil {
		return map[string]int64{}
	}
	return map[string]int64{
		"requests":          mc.requests.Load(),
		"successes":         mc.successes.Load(),
		"retries":           mc.retries.Load(),
		"cascade_lookups":   mc.cascadeLookups.Load(),
		"cache_errors":      mc.cacheErrors.Load(),
		"pool_rotations":    mc.rotations.Load(),
		"rotation_errors":   mc.rotationErrors.Load(),
		"token_cache_hits":  mc.tokenCacheHits.Load(),
		"token_mints":       mc.tokenMints.Load(),
		"token_mint_errors": mc.tokenMintErrors.Load(),
		"websocket_relays":  mc.wsRelays.Load(),
		"uptime_seconds":    int64(time.Since(mc.startedAt).Seconds()),
	}
}

// Handler serves the prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	if mc == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
