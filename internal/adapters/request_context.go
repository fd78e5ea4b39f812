package adapters

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/compresr/llm-relay/internal/auth"
)

// statefulSegments are path segments addressing server-side state.
var statefulSegments = map[string]bool{
	"files":          true,
	"cachedContents": true,
	"batches":        true,
	"corpora":        true,
	"tunedModels":    true,
}

// statefulBodyMarkers are JSON keys referencing uploaded files or cached content.
var statefulBodyMarkers = [][]byte{
	[]byte(`"fileUri"`),
	[]byte(`"file_uri"`),
	[]byte(`"file_id"`),
	[]byte(`"cachedContent"`),
	[]byte(`"cached_content"`),
}

// RequestContext is the immutable view of one inbound request.
type RequestContext struct {
	Request   *http.Request
	Method    string
	URL       *url.URL
	Header    http.Header
	Body      []byte
	RequestID string

	// Prefix is the matched route prefix; Remainder is the path after it.
	Prefix    string
	Remainder string

	// Credential is the caller's credential, if any.
	Credential string

	Stateful  bool
	WebSocket bool

	// PublicOrigin is scheme://host of the gateway as the caller sees it.
	PublicOrigin string

	// MappedBaseURL is the passthrough target for a mapped prefix.
	MappedBaseURL string

	parseOnce sync.Once
	parsed    gjson.Result
	valid     bool
}

// NewRequestContext captures r. body has already been read from r.Body.
func NewRequestContext(r *http.Request, body []byte, prefix, requestID string) *RequestContext {
	remainder := strings.TrimPrefix(r.URL.Path, prefix)
	if remainder != "" && !strings.HasPrefix(remainder, "/") {
		remainder = "/" + remainder
	}
	rc := &RequestContext{
		Request:      r,
		Method:       r.Method,
		URL:          r.URL,
		Header:       r.Header,
		Body:         body,
		RequestID:    requestID,
		Prefix:       prefix,
		Remainder:    remainder,
		Credential:   auth.ExtractCredential(r),
		WebSocket:    IsWebSocketUpgrade(r),
		PublicOrigin: originOf(r),
	}
	rc.Stateful = isStatefulPath(remainder) || isStatefulBody(body)
	return rc
}

// Context returns the inbound request's context.
func (rc *RequestContext) Context() context.Context {
	if rc.Request == nil {
		return context.Background()
	}
	return rc.Request.Context()
}

// JSON parses the body once and returns it, with ok=false for empty or
// malformed bodies.
func (rc *RequestContext) JSON() (gjson.Result, bool) {
	rc.parseOnce.Do(func() {
		if len(bytes.TrimSpace(rc.Body)) == 0 || !gjson.ValidBytes(rc.Body) {
			return
		}
		rc.parsed = gjson.ParseBytes(rc.Body)
		rc.valid = true
	})
	return rc.parsed, rc.valid
}

// BodyModel returns the body's "model" field, or "".
func (rc *RequestContext) BodyModel() string {
	doc, ok := rc.JSON()
	if !ok {
		return ""
	}
	return doc.Get("model").String()
}

// SniffModel reads the "model" field without requiring the rest of the body
// to be valid JSON, so a malformed body still reaches the strategy that owns
// the model and fails there.
func (rc *RequestContext) SniffModel() string {
	if doc, ok := rc.JSON(); ok {
		return doc.Get("model").String()
	}
	return gjson.GetBytes(rc.Body, "model").String()
}

// QueryWithoutKey returns the raw query with the credential parameter removed.
func (rc *RequestContext) QueryWithoutKey() string {
	if rc.URL == nil || rc.URL.RawQuery == "" {
		return ""
	}
	q := rc.URL.Query()
	q.Del(auth.QueryKey)
	return q.Encode()
}

// IsWebSocketUpgrade reports whether r asks for a WebSocket upgrade.
func IsWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(v), "upgrade") {
			return true
		}
	}
	return false
}

func isStatefulPath(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		// "files/abc:download" and "cachedContents/x" both start with the segment name.
		if i := strings.IndexByte(seg, ':'); i >= 0 {
			seg = seg[:i]
		}
		if statefulSegments[seg] {
			return true
		}
	}
	return false
}

func isStatefulBody(body []byte) bool {
	for _, marker := range statefulBodyMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func originOf(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = strings.TrimSpace(strings.Split(h, ",")[0])
	}
	return scheme + "://" + host
}

// joinURL appends path and query to base.
func joinURL(base, path, rawQuery string) string {
	u := strings.TrimRight(base, "/") + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}
