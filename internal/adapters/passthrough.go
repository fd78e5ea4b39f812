package adapters

import (
	"context"
	"net/http"

	"github.com/compresr/llm-relay/internal/auth"
)

// PassthroughStrategy proxies mapped prefixes to their base URL unchanged.
type PassthroughStrategy struct{}

// NewPassthroughStrategy creates the passthrough strategy.
func NewPassthroughStrategy() *PassthroughStrategy { return &PassthroughStrategy{} }

func (s *PassthroughStrategy) Name() Kind { return KindPassthrough }

// Authenticate never needs a credential.
func (s *PassthroughStrategy) Authenticate(context.Context, *RequestContext, int) (auth.Details, *auth.TerminalError) {
	return auth.Details{Source: auth.SourceAnonymous, MaxRetries: 1}, nil
}

func (s *PassthroughStrategy) BuildTargetURL(rc *RequestContext, _ auth.Details) (string, *auth.TerminalError) {
	if rc.MappedBaseURL == "" {
		return "", auth.Unavailable("no upstream mapped for " + rc.Prefix)
	}
	return joinURL(rc.MappedBaseURL, rc.Remainder, rc.QueryWithoutKey()), nil
}

// BuildHeaders forwards caller headers minus gateway credentials.
func (s *PassthroughStrategy) BuildHeaders(rc *RequestContext, _ auth.Details) http.Header {
	return baseHeaders(rc.Header)
}

func (s *PassthroughStrategy) TransformBody(rc *RequestContext) ([]byte, *auth.TerminalError) {
	return rc.Body, nil
}

func (s *PassthroughStrategy) TransformResponse(_ *RequestContext, _ auth.Details, resp *http.Response) (*http.Response, error) {
	return resp, nil
}
