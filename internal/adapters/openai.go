package adapters

import (
	"context"
	"net/http"
	"strings"

	"github.com/compresr/llm-relay/internal/auth"
	"github.com/compresr/llm-relay/internal/config"
)

// OpenAIStrategy serves the OpenAI-compatible dialect of the native backend.
type OpenAIStrategy struct {
	resolver  CredentialResolver
	baseURL   string
	namespace string
}

// NewOpenAIStrategy creates the OpenAI-compatible strategy.
func NewOpenAIStrategy(resolver CredentialResolver, cfg config.UpstreamsConfig) *OpenAIStrategy {
	ns := cfg.ModelNamespace
	if ns == "" {
		ns = config.DefaultModelNamespace
	}
	return &OpenAIStrategy{resolver: resolver, baseURL: cfg.OpenAIBaseURL, namespace: ns}
}

func (s *OpenAIStrategy) Name() Kind { return KindOpenAI }

func (s *OpenAIStrategy) Authenticate(ctx context.Context, rc *RequestContext, attempt int) (auth.Details, *auth.TerminalError) {
	return s.resolver.Resolve(ctx, authRequest(rc, rc.BodyModel(), attempt))
}

// BuildTargetURL maps /v1/chat/completions (or /v1beta/...) onto {base}/chat/completions.
func (s *OpenAIStrategy) BuildTargetURL(rc *RequestContext, _ auth.Details) (string, *auth.TerminalError) {
	return joinURL(s.baseURL, openAIPath(rc.Remainder), rc.QueryWithoutKey()), nil
}

func openAIPath(remainder string) string {
	rest := remainder
	for _, p := range []string{"/v1beta/openai", "/v1beta", "/v1"} {
		if rest == p || strings.HasPrefix(rest, p+"/") {
			rest = strings.TrimPrefix(rest, p)
			break
		}
	}
	return rest
}

func (s *OpenAIStrategy) BuildHeaders(rc *RequestContext, d auth.Details) http.Header {
	h := baseHeaders(rc.Header)
	if d.Credential != "" {
		h.Set(auth.HeaderAuthorization, "Bearer "+d.Credential)
	}
	return h
}

func (s *OpenAIStrategy) TransformBody(rc *RequestContext) ([]byte, *auth.TerminalError) {
	return rc.Body, nil
}

// TransformResponse strips the vendor namespace from model listings while
// streaming the body through.
func (s *OpenAIStrategy) TransformResponse(rc *RequestContext, _ auth.Details, resp *http.Response) (*http.Response, error) {
	if !isModelListing(rc.Method, openAIPath(rc.Remainder)) {
		return resp, nil
	}
	resp.Body = NewReplaceReader(resp.Body, `"`+s.namespace, `"`)
	resp.ContentLength = -1
	resp.Header.Del("Content-Length")
	return resp, nil
}

// isModelListing matches GET /models and GET /models/{id}.
func isModelListing(method, path string) bool {
	if method != http.MethodGet {
		return false
	}
	path = strings.TrimRight(path, "/")
	if strings.HasSuffix(path, "/models") {
		return true
	}
	i := strings.LastIndex(path, "/models/")
	return i >= 0 && !strings.Contains(path[i+len("/models/"):], "/")
}
