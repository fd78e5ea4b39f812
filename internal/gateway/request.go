// Request classification - which strategy serves a request.
//
// DESIGN: Longest matching prefix wins.
//   - /llm:     vertex when the body model is a cloud ML model, native for
//               versioned native paths and realtime upgrades, openai otherwise
//   - /openai:  openai
//   - mapped:   passthrough to the mapped base URL
//   - anything else has no upstream (503)
package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/compresr/llm-relay/internal/adapters"
	"github.com/compresr/llm-relay/internal/pool"
)

// nativePathPrefixes mark a remainder that already speaks the native protocol.
var nativePathPrefixes = []string{"/v1beta/", "/v1alpha/", "/upload/"}

// matchPrefix returns the first prefix that owns path. prefixes must be
// sorted longest first.
func matchPrefix(path string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return p, true
		}
	}
	return "", false
}

// kindFor picks the strategy for a request whose prefix has been matched.
func (g *Gateway) kindFor(rc *adapters.RequestContext) adapters.Kind {
	switch rc.Prefix {
	case pool.PrefixOpenAI:
		return adapters.KindOpenAI
	case pool.PrefixLLM:
		ctx := rc.Context()
		if model := rc.SniffModel(); model != "" && g.routes.IsVertexModel(ctx, model) {
			return adapters.KindVertex
		}
		if rc.WebSocket || isNativePath(rc.Remainder) {
			return adapters.KindNative
		}
		return adapters.KindOpenAI
	default:
		return adapters.KindPassthrough
	}
}

func isNativePath(remainder string) bool {
	if remainder == "/v1beta/openai" || strings.HasPrefix(remainder, "/v1beta/openai/") {
		return false
	}
	for _, p := range nativePathPrefixes {
		if strings.HasPrefix(remainder, p) {
			return true
		}
	}
	return false
}

// getRequestID gets or generates a request ID.
func (g *Gateway) getRequestID(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

// requestModel names the model for telemetry: the body model, else the one
// in a native path.
func requestModel(rc *adapters.RequestContext) string {
	if m := rc.SniffModel(); m != "" {
		return m
	}
	return adapters.ModelFromPath(rc.Remainder)
}

// clientIP returns the first X-Forwarded-For hop, else the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
