// Package adapters types - protocol strategies and the per-request context.
//
// DESIGN: One Strategy per backend family, chosen by the dispatch loop:
//   - vertex:      cloud ML platform, service-account tokens, body rewrites
//   - openai:      OpenAI-compatible dialect, Bearer credential
//   - native:      native protocol, x-goog-api-key, uploads, realtime relay
//   - passthrough: mapped third-party prefixes, no credential
//
// Strategies never call upstream themselves; the dispatch loop drives
// Authenticate -> BuildTargetURL -> BuildHeaders -> TransformBody -> call ->
// TransformResponse for every attempt.
package adapters

import (
	"context"
	"net/http"

	"github.com/compresr/llm-relay/internal/auth"
)

// =============================================================================
// STRATEGY KINDS
// =============================================================================

// Kind identifies a backend family.
type Kind string

const (
	KindVertex      Kind = "vertex"
	KindOpenAI      Kind = "openai"
	KindNative      Kind = "native"
	KindPassthrough Kind = "passthrough"
)

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// =============================================================================
// STRATEGY INTERFACE
// =============================================================================

// Strategy translates a generic inbound request into one backend's dialect.
type Strategy interface {
	// Name returns the strategy kind.
	Name() Kind

	// Authenticate resolves the credential for attempt (1-based).
	Authenticate(ctx context.Context, rc *RequestContext, attempt int) (auth.Details, *auth.TerminalError)

	// BuildTargetURL returns the absolute upstream URL.
	BuildTargetURL(rc *RequestContext, d auth.Details) (string, *auth.TerminalError)

	// BuildHeaders returns outbound headers. Inbound Host and credential
	// headers are always removed before the outbound credential is set.
	BuildHeaders(rc *RequestContext, d auth.Details) http.Header

	// TransformBody returns the outbound body. It never mutates rc.Body.
	TransformBody(rc *RequestContext) ([]byte, *auth.TerminalError)

	// TransformResponse post-processes a 2xx upstream response.
	TransformResponse(rc *RequestContext, d auth.Details, resp *http.Response) (*http.Response, error)
}

// CredentialResolver is the slice of auth.Resolver strategies use.
type CredentialResolver interface {
	Resolve(ctx context.Context, req auth.Request) (auth.Details, *auth.TerminalError)
	ResolveGCP(ctx context.Context, req auth.Request) (auth.Details, *auth.TerminalError)
}

// authRequest builds the resolver input for rc.
func authRequest(rc *RequestContext, model string, attempt int) auth.Request {
	return auth.Request{
		Credential: rc.Credential,
		Model:      model,
		Attempt:    attempt,
		Stateful:   rc.Stateful,
		Method:     rc.Method,
		Path:       rc.Remainder,
	}
}
