package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/adapters"
	"github.com/compresr/llm-relay/internal/auth"
	"github.com/compresr/llm-relay/internal/cache"
	"github.com/compresr/llm-relay/internal/cascade"
	"github.com/compresr/llm-relay/internal/config"
	"github.com/compresr/llm-relay/internal/gateway"
	"github.com/compresr/llm-relay/internal/gcp"
	"github.com/compresr/llm-relay/internal/monitoring"
	"github.com/compresr/llm-relay/internal/pool"
	"github.com/compresr/llm-relay/internal/store"
)

// redisKeyPrefix namespaces relay entries on a shared Redis server.
const redisKeyPrefix = "llm-relay:"

// app is the fully wired process.
type app struct {
	cfg        *config.Config
	cascade    *cascade.Cascade
	pool       *pool.Pool
	metrics    *monitoring.MetricsCollector
	telemetry  *monitoring.Tracker
	strategies *adapters.Registry
	gateway    *gateway.Gateway
	refresher  *pool.Refresher
}

// newApp wires every component from cfg. Collaborators open lazily on the
// first request, so a store that is briefly unreachable does not block startup.
func newApp(cfg *config.Config) (*app, error) {
	var metrics *monitoring.MetricsCollector
	if cfg.Monitoring.MetricsEnabled {
		metrics = monitoring.NewMetricsCollector()
	}

	telemetry, err := monitoring.NewTracker(cfg.Monitoring.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry log: %w", err)
	}

	c := newCascade(cfg, metrics)
	p := pool.New(c, metrics)
	tokens := gcp.NewTokenCache(c, gcp.WithMetrics(metrics))
	resolver := auth.NewResolver(p, tokens)

	strategies := adapters.NewRegistry()
	strategies.Register(adapters.NewVertexStrategy(resolver, p, cfg.Upstreams))
	strategies.Register(adapters.NewOpenAIStrategy(resolver, cfg.Upstreams))
	strategies.Register(adapters.NewNativeStrategy(resolver, cfg.Upstreams, cfg.Server.PublicURL))
	strategies.Register(adapters.NewPassthroughStrategy())

	a := &app{
		cfg:        cfg,
		cascade:    c,
		pool:       p,
		metrics:    metrics,
		telemetry:  telemetry,
		strategies: strategies,
	}

	a.gateway = gateway.New(gateway.Options{
		Routes:       p,
		Strategies:   strategies,
		Metrics:      metrics,
		Telemetry:    telemetry,
		Client:       gateway.NewHTTPClient(cfg.Upstreams),
		Health:       healthCheck(c),
		MaxBodySize:  config.MaxRequestBodySize,
		CloseTimeout: config.DefaultWebSocketCloseTimeout,
	})

	if cfg.Refresh.Enabled {
		r, err := pool.NewRefresher(p, cfg.Refresh.Schedule)
		if err != nil {
			return nil, err
		}
		a.refresher = r
	}
	return a, nil
}

// newCascade creates the lazily opened config cascade described by cfg.
func newCascade(cfg *config.Config, metrics *monitoring.MetricsCollector) *cascade.Cascade {
	return cascade.NewLazy(openCollaborators(cfg), cascade.Options{
		TTL:     cfg.Cache.ConfigTTL,
		Metrics: metrics,
	})
}

// openCollaborators returns the opener for the durable store and regional cache.
func openCollaborators(cfg *config.Config) cascade.Opener {
	return func(ctx context.Context) (store.Store, cache.Cache, error) {
		var st store.Store
		switch cfg.Store.Type {
		case "memory":
			st = store.NewMemory()
		case "sqlite":
			s, err := store.NewSQLite(cfg.Store.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
			}
			st = s
		default:
			return nil, nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
		}

		var ca cache.Cache
		switch cfg.Cache.Type {
		case "memory":
			ca = cache.NewMemory(config.DefaultCleanupInterval)
		case "redis":
			r := cache.NewRedis(cache.RedisConfig{
				Addr:     cfg.Cache.RedisAddr,
				Password: cfg.Cache.Password,
				DB:       cfg.Cache.RedisDB,
				Prefix:   redisKeyPrefix,
			})
			// An unreachable cache only costs latency; reads fall through to the store.
			if err := r.Ping(ctx); err != nil {
				log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis cache unreachable at startup")
			}
			ca = r
		default:
			_ = st.Close()
			return nil, nil, fmt.Errorf("unsupported cache type %q", cfg.Cache.Type)
		}

		log.Info().
			Str("store", cfg.Store.Type).
			Str("cache", cfg.Cache.Type).
			Msg("collaborators opened")
		return st, ca, nil
	}
}

// healthCheck reports the store open state and cache reachability.
func healthCheck(c *cascade.Cascade) gateway.HealthCheck {
	return func(ctx context.Context) error {
		if _, err := c.Store(ctx); err != nil {
			return err
		}
		ca, err := c.Cache(ctx)
		if err != nil {
			return err
		}
		if err := ca.Ping(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
		return nil
	}
}

// start launches background jobs.
func (a *app) start(ctx context.Context) error {
	if a.refresher == nil {
		return nil
	}
	return a.refresher.Start(ctx)
}

// close stops background jobs and releases collaborators.
func (a *app) close() error {
	if a.refresher != nil {
		a.refresher.Stop()
	}
	_ = a.telemetry.Close()
	return a.cascade.Close()
}
