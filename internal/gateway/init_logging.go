package gateway

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/adapters"
	"github.com/compresr/llm-relay/internal/config"
	"github.com/compresr/llm-relay/internal/monitoring"
)

// LogStartup writes one gateway_init event describing the process wiring,
// to the log and to the telemetry init file. Credentials are never logged.
func LogStartup(cfg *config.Config, strategies *adapters.Registry, telemetry *monitoring.Tracker, version string) {
	ev := buildInitEvent(cfg, strategies, version)

	log.Info().
		Str("event", ev.Event).
		Str("version", version).
		Int("port", cfg.Server.Port).
		Dur("read_timeout", cfg.Server.ReadTimeout).
		Dur("write_timeout", cfg.Server.WriteTimeout).
		Str("public_url", cfg.Server.PublicURL).
		Str("store", cfg.Store.Type).
		Str("cache", cfg.Cache.Type).
		Dur("config_ttl", cfg.Cache.ConfigTTL).
		Str("native_base_url", cfg.Upstreams.NativeBaseURL).
		Str("openai_base_url", cfg.Upstreams.OpenAIBaseURL).
		Bool("refresh_enabled", cfg.Refresh.Enabled).
		Str("refresh_schedule", cfg.Refresh.Schedule).
		Bool("metrics_enabled", cfg.Monitoring.MetricsEnabled).
		Bool("telemetry_enabled", telemetry.Enabled()).
		Strs("strategies", ev.Strategies).
		Msg("gateway initialized")

	telemetry.RecordInit(ev)
}

func buildInitEvent(cfg *config.Config, strategies *adapters.Registry, version string) *monitoring.InitEvent {
	kinds := make([]string, 0, 4)
	if strategies != nil {
		for _, k := range strategies.Kinds() {
			kinds = append(kinds, k.String())
		}
	}
	sort.Strings(kinds)

	ev := &monitoring.InitEvent{
		Timestamp:            time.Now(),
		Event:                "gateway_init",
		Version:              version,
		ServerPort:           cfg.Server.Port,
		ServerReadTimeoutMs:  cfg.Server.ReadTimeout.Milliseconds(),
		ServerWriteTimeoutMs: cfg.Server.WriteTimeout.Milliseconds(),
		Store:                cfg.Store.Type,
		Cache:                cfg.Cache.Type,
		Strategies:           kinds,
		RefreshEnabled:       cfg.Refresh.Enabled,
		MetricsEnabled:       cfg.Monitoring.MetricsEnabled,
	}
	if cfg.Refresh.Enabled {
		ev.RefreshSchedule = cfg.Refresh.Schedule
	}
	if cfg.Monitoring.Telemetry.Enabled {
		ev.TelemetryPath = cfg.Monitoring.Telemetry.LogPath
	}
	return ev
}
