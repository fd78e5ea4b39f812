package adapters

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/auth"
	"github.com/compresr/llm-relay/internal/config"
	"github.com/compresr/llm-relay/internal/pool"
)

// HeaderUploadURL carries the resumable-upload session URL.
const HeaderUploadURL = "X-Goog-Upload-URL"

var pathModel = regexp.MustCompile(`/models/([^/:]+)`)

// NativeStrategy serves the native protocol, including file uploads and the
// realtime WebSocket API.
type NativeStrategy struct {
	resolver  CredentialResolver
	baseURL   string
	uploadURL string
	publicURL string
}

// NewNativeStrategy creates the native strategy. publicURL overrides the
// origin derived from inbound requests when rewriting upload URLs.
func NewNativeStrategy(resolver CredentialResolver, cfg config.UpstreamsConfig, publicURL string) *NativeStrategy {
	upload := cfg.UploadBaseURL
	if upload == "" {
		upload = cfg.NativeBaseURL
	}
	return &NativeStrategy{
		resolver:  resolver,
		baseURL:   cfg.NativeBaseURL,
		uploadURL: upload,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *NativeStrategy) Name() Kind { return KindNative }

// Authenticate resolves with the model named in the path, not the body.
func (s *NativeStrategy) Authenticate(ctx context.Context, rc *RequestContext, attempt int) (auth.Details, *auth.TerminalError) {
	return s.resolver.Resolve(ctx, authRequest(rc, ModelFromPath(rc.Remainder), attempt))
}

func (s *NativeStrategy) BuildTargetURL(rc *RequestContext, _ auth.Details) (string, *auth.TerminalError) {
	base := s.baseURL
	if IsUploadPath(rc.Remainder) {
		base = s.uploadURL
	}
	target := joinURL(base, rc.Remainder, rc.QueryWithoutKey())
	if rc.WebSocket {
		target = toWebSocketURL(target)
	}
	return target, nil
}

func (s *NativeStrategy) BuildHeaders(rc *RequestContext, d auth.Details) http.Header {
	h := baseHeaders(rc.Header)
	if d.Credential != "" {
		h.Set(auth.HeaderGoogAPIKey, d.Credential)
	}
	return h
}

func (s *NativeStrategy) TransformBody(rc *RequestContext) ([]byte, *auth.TerminalError) {
	return rc.Body, nil
}

// TransformResponse points resumable-upload URLs back at the gateway so the
// follow-up PUT is authenticated with the caller's own credential.
func (s *NativeStrategy) TransformResponse(rc *RequestContext, _ auth.Details, resp *http.Response) (*http.Response, error) {
	raw := resp.Header.Get(HeaderUploadURL)
	if raw == "" {
		return resp, nil
	}
	rewritten, err := s.rewriteUploadURL(rc, raw)
	if err != nil {
		log.Warn().Err(err).Str("request_id", rc.RequestID).Msg("native: leaving upload URL unchanged")
		return resp, nil
	}
	resp.Header.Set(HeaderUploadURL, rewritten)
	return resp, nil
}

func (s *NativeStrategy) rewriteUploadURL(rc *RequestContext, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Del(auth.QueryKey)
	if rc.Credential != "" {
		q.Set(auth.QueryKey, rc.Credential)
	}
	origin := s.publicURL
	if origin == "" {
		origin = rc.PublicOrigin
	}
	return joinURL(origin+pool.PrefixLLM, u.EscapedPath(), q.Encode()), nil
}

// DialUpstream opens the upstream realtime socket with the resolved credential.
// The returned response is non-nil when the upstream answered the handshake.
func (s *NativeStrategy) DialUpstream(ctx context.Context, rc *RequestContext, d auth.Details) (*websocket.Conn, *http.Response, error) {
	target, terr := s.BuildTargetURL(rc, d)
	if terr != nil {
		return nil, nil, terr
	}
	opts := &websocket.DialOptions{HTTPHeader: s.BuildHeaders(rc, d)}
	if proto := rc.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			opts.Subprotocols = append(opts.Subprotocols, strings.TrimSpace(p))
		}
	}
	return websocket.Dial(ctx, target, opts)
}

// ModelFromPath extracts the model from /models/{model}:action paths.
func ModelFromPath(path string) string {
	m := pathModel.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsUploadPath reports whether path targets the upload host.
func IsUploadPath(path string) bool {
	return strings.HasPrefix(path, "/upload/")
}

// toWebSocketURL converts an HTTP(S) URL to a WS(S) URL.
func toWebSocketURL(httpURL string) string {
	if strings.HasPrefix(httpURL, "https://") {
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	}
	if strings.HasPrefix(httpURL, "http://") {
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	// Already a ws:// or wss:// URL
	return httpURL
}
