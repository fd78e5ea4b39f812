package adapters

import (
	"net/http"
	"strings"

	"github.com/compresr/llm-relay/internal/auth"
)

// strippedHeaders never reach an upstream. Accept-Encoding is dropped so the
// transport negotiates compression itself and response rewrites see plain text.
var strippedHeaders = []string{
	"Host",
	auth.HeaderAuthorization,
	auth.HeaderGoogAPIKey,
	auth.HeaderXAPIKey,
	"Accept-Encoding",
	"Content-Length",
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// baseHeaders clones inbound headers without host, credential, hop-by-hop
// and WebSocket handshake headers.
func baseHeaders(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, h := range strippedHeaders {
		out.Del(h)
	}
	for k := range out {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), "Sec-Websocket-") {
			delete(out, k)
		}
	}
	return out
}
