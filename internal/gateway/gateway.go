// Package gateway is the HTTP surface of the relay.
//
// DESIGN: The gateway owns no routing tables of its own. Everything under a
// known prefix goes to the dispatcher, which:
//   - classifies the request into a strategy kind  (request.go)
//   - drives authenticate -> build -> call with bounded retries  (handler.go)
//   - relays realtime sockets for upgrade requests  (websocket.go)
//
// Operational endpoints (/health, /metrics, /stats) are registered first so
// a mapped prefix can never shadow them.
package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/compresr/llm-relay/internal/adapters"
	"github.com/compresr/llm-relay/internal/config"
	"github.com/compresr/llm-relay/internal/monitoring"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// RouteTable is the routing view of the credential pool.
type RouteTable interface {
	// Prefixes returns every routable prefix, longest first.
	Prefixes(ctx context.Context) []string
	APIMappings(ctx context.Context) map[string]string
	IsVertexModel(ctx context.Context, model string) bool
}

// HealthCheck reports whether the collaborators are reachable.
type HealthCheck func(ctx context.Context) error

// Options wires a Gateway.
type Options struct {
	Routes     RouteTable
	Strategies *adapters.Registry
	Metrics    *monitoring.MetricsCollector
	// Telemetry is optional; nil records nothing.
	Telemetry *monitoring.Tracker

	// Client performs upstream calls. Defaults to NewHTTPClient(config.UpstreamsConfig{}).
	Client *http.Client

	// Health is optional; without it /health always reports ok.
	Health HealthCheck

	MaxBodySize  int64
	CloseTimeout time.Duration
}

// Gateway dispatches inbound requests to upstream backends.
type Gateway struct {
	routes       RouteTable
	strategies   *adapters.Registry
	metrics      *monitoring.MetricsCollector
	telemetry    *monitoring.Tracker
	client       *http.Client
	health       HealthCheck
	maxBodySize  int64
	closeTimeout time.Duration
	router       *mux.Router
}

// New creates a gateway. Routes and Strategies are required.
func New(opts Options) *Gateway {
	g := &Gateway{
		routes:       opts.Routes,
		strategies:   opts.Strategies,
		metrics:      opts.Metrics,
		telemetry:    opts.Telemetry,
		client:       opts.Client,
		health:       opts.Health,
		maxBodySize:  opts.MaxBodySize,
		closeTimeout: opts.CloseTimeout,
	}
	if g.client == nil {
		g.client = NewHTTPClient(config.UpstreamsConfig{})
	}
	if g.maxBodySize <= 0 {
		g.maxBodySize = config.MaxRequestBodySize
	}
	if g.closeTimeout <= 0 {
		g.closeTimeout = config.DefaultWebSocketCloseTimeout
	}
	g.router = g.buildRouter()
	return g
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) buildRouter() *mux.Router {
	r := mux.NewRouter()
	// Upstream paths such as /v1beta/models/x:generateContent must reach the
	// strategies untouched.
	r.SkipClean(true)

	r.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", g.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/stats", g.handleStats).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(g.handleProxy)
	return r
}

// NewHTTPClient creates the upstream client. Redirects are returned to the
// caller rather than followed, so credentials never leak to another host.
func NewHTTPClient(cfg config.UpstreamsConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultUpstreamTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   config.DefaultDialTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.MaxIdleConnsPerHost = 32

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
