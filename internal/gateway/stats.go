// Package gateway - stats.go exposes aggregated metrics as JSON.
//
// GET /stats returns request, retry and credential counters.
package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"time"
)

// StatsResponse is the JSON response for GET /stats.
type StatsResponse struct {
	Uptime  string `json:"uptime"`
	Gateway struct {
		TotalRequests      int64 `json:"total_requests"`
		SuccessfulRequests int64 `json:"successful_requests"`
		Retries            int64 `json:"retries"`
		WebSocketRelays    int64 `json:"websocket_relays"`
	} `json:"gateway"`

	Credentials struct {
		PoolRotations   int64 `json:"pool_rotations"`
		RotationErrors  int64 `json:"rotation_errors"`
		TokenCacheHits  int64 `json:"token_cache_hits"`
		TokenMints      int64 `json:"token_mints"`
		TokenMintErrors int64 `json:"token_mint_errors"`
	} `json:"credentials"`

	Cascade struct {
		Lookups     int64 `json:"lookups"`
		CacheErrors int64 `json:"cache_errors"`
	} `json:"cascade"`
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var resp StatsResponse
	if started := g.metrics.StartedAt(); !started.IsZero() {
		resp.Uptime = time.Since(started).Truncate(time.Second).String()
	}

	stats := g.metrics.Stats()
	resp.Gateway.TotalRequests = stats["requests"]
	resp.Gateway.SuccessfulRequests = stats["successes"]
	resp.Gateway.Retries = stats["retries"]
	resp.Gateway.WebSocketRelays = stats["websocket_relays"]
	resp.Credentials.PoolRotations = stats["pool_rotations"]
	resp.Credentials.RotationErrors = stats["rotation_errors"]
	resp.Credentials.TokenCacheHits = stats["token_cache_hits"]
	resp.Credentials.TokenMints = stats["token_mints"]
	resp.Credentials.TokenMintErrors = stats["token_mint_errors"]
	resp.Cascade.Lookups = stats["cascade_lookups"]
	resp.Cascade.CacheErrors = stats["cache_errors"]

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// isLoopback reports whether remoteAddr (host:port) is a loopback address.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
