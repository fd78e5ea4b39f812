// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER DEFAULTS
// =============================================================================

// DefaultPort is the listen port when none is configured.
const DefaultPort = 8787

// DefaultReadTimeout bounds how long the server waits for a request.
const DefaultReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// DefaultShutdownTimeout bounds graceful shutdown. Open streams and relays
// still running after it are cut.
const DefaultShutdownTimeout = 30 * time.Second

// MaxRequestBodySize is the maximum allowed request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// =============================================================================
// UPSTREAM DEFAULTS
// =============================================================================

// DefaultNativeBaseURL is the native LLM protocol host.
const DefaultNativeBaseURL = "https://generativelanguage.googleapis.com"

// DefaultOpenAIPath is appended to the native base URL for the OpenAI-compatible dialect.
const DefaultOpenAIPath = "/v1beta/openai"

// DefaultModelNamespace is the vendor prefix stripped from model listings.
const DefaultModelNamespace = "models/"

// DefaultVertexPublisher is prepended to bare model names on the cloud ML platform.
const DefaultVertexPublisher = "google"

// DefaultUpstreamTimeout bounds a single upstream attempt (streaming included).
const DefaultUpstreamTimeout = 10 * time.Minute

// DefaultDialTimeout is the TCP dial timeout.
const DefaultDialTimeout = 30 * time.Second

// DefaultWebSocketCloseTimeout bounds how long a relay waits for the peer to close.
const DefaultWebSocketCloseTimeout = 5 * time.Second

// =============================================================================
// CASCADE AND CACHE DEFAULTS
// =============================================================================

// DefaultConfigCacheTTL is the max-age of cascade values mirrored into the cache.
const DefaultConfigCacheTTL = time.Hour

// DefaultCleanupInterval is the frequency for background cleanup goroutines.
const DefaultCleanupInterval = 5 * time.Minute

// DefaultRefreshSchedule is the cron spec of the scheduled cascade reload.
const DefaultRefreshSchedule = "@every 5m"

// DefaultSQLitePath is used when the sqlite store has no explicit path.
const DefaultSQLitePath = "llm-relay.db"

// DefaultTelemetryPath is the request event log when telemetry is enabled
// without an explicit path.
const DefaultTelemetryPath = "logs/requests.jsonl"

// =============================================================================
// CREDENTIAL POOL DEFAULTS
// =============================================================================

// DefaultRetryLimit is the attempt budget for pooled credentials.
const DefaultRetryLimit = 3

// DefaultGCPLocation is the cloud ML region when none is configured.
const DefaultGCPLocation = "global"

// GCPTokenTTL is how long minted access tokens are cached. Provider tokens
// live for 60 minutes; the cache entry must expire first.
const GCPTokenTTL = 50 * time.Minute
