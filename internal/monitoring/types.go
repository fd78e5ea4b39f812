// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - RequestEvent:  Telemetry data for each request
//   - InitEvent:     Process wiring at startup
//   - Config types:  TelemetryConfig
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RequestEvent captures a request through the gateway. Credentials never
// appear here; only where the outbound one came from.
type RequestEvent struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	Prefix           string    `json:"prefix,omitempty"`
	ClientIP         string    `json:"client_ip"`
	Strategy         string    `json:"strategy"`
	Model            string    `json:"model,omitempty"`
	Stateful         bool      `json:"stateful,omitempty"`
	WebSocket        bool      `json:"websocket,omitempty"`
	CredentialSource string    `json:"credential_source,omitempty"` // user, fallback, pool, anonymous
	Attempts         int       `json:"attempts"`
	RequestBodySize  int       `json:"request_body_size"`
	StatusCode       int       `json:"status_code"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	TotalLatencyMs   int64     `json:"total_latency_ms"`
}

// InitEvent captures gateway startup configuration.
type InitEvent struct {
	Timestamp            time.Time `json:"timestamp"`
	Event                string    `json:"event"`
	Version              string    `json:"version,omitempty"`
	ServerPort           int       `json:"server_port"`
	ServerReadTimeoutMs  int64     `json:"server_read_timeout_ms"`
	ServerWriteTimeoutMs int64     `json:"server_write_timeout_ms"`
	Store                string    `json:"store"`
	Cache                string    `json:"cache"`
	Strategies           []string  `json:"strategies,omitempty"`
	RefreshEnabled       bool      `json:"refresh_enabled"`
	RefreshSchedule      string    `json:"refresh_schedule,omitempty"`
	MetricsEnabled       bool      `json:"metrics_enabled"`
	TelemetryPath        string    `json:"telemetry_path,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}
