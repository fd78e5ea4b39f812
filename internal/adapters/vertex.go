package adapters

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/compresr/llm-relay/internal/auth"
	"github.com/compresr/llm-relay/internal/config"
)

// harmCategories are forced to OFF on every cloud ML call.
var harmCategories = []string{
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_CIVIC_INTEGRITY",
}

var safetySettingsOff = func() string {
	parts := make([]string, 0, len(harmCategories))
	for _, c := range harmCategories {
		parts = append(parts, `{"category":"`+c+`","threshold":"OFF"}`)
	}
	return "[" + strings.Join(parts, ",") + "]"
}()

// versionPrefix matches a leading API version segment such as /v1 or /v1beta.
var versionPrefix = regexp.MustCompile(`^/v\d+(?:(?:alpha|beta)\d*)?(?:/|$)`)

// LocationSource supplies the cloud ML region.
type LocationSource interface {
	GCPDefaultLocation(ctx context.Context) string
}

// VertexStrategy serves models hosted on the cloud ML platform through its
// OpenAI-compatible endpoint.
type VertexStrategy struct {
	resolver  CredentialResolver
	locations LocationSource
	baseURL   string // overrides host naming rules when set
	publisher string
}

// NewVertexStrategy creates the cloud ML strategy.
func NewVertexStrategy(resolver CredentialResolver, locations LocationSource, cfg config.UpstreamsConfig) *VertexStrategy {
	return &VertexStrategy{
		resolver:  resolver,
		locations: locations,
		baseURL:   cfg.VertexBaseURL,
		publisher: config.DefaultVertexPublisher,
	}
}

func (s *VertexStrategy) Name() Kind { return KindVertex }

func (s *VertexStrategy) Authenticate(ctx context.Context, rc *RequestContext, attempt int) (auth.Details, *auth.TerminalError) {
	return s.resolver.ResolveGCP(ctx, authRequest(rc, rc.BodyModel(), attempt))
}

func (s *VertexStrategy) BuildTargetURL(rc *RequestContext, d auth.Details) (string, *auth.TerminalError) {
	if d.GCPProject == "" {
		return "", auth.Unavailable("cloud ML project missing")
	}
	location := s.locations.GCPDefaultLocation(rc.Context())
	path := "/v1/projects/" + d.GCPProject + "/locations/" + location + "/endpoints/openapi" + stripVersion(rc.Remainder)
	return joinURL(s.host(location), path, rc.QueryWithoutKey()), nil
}

func (s *VertexStrategy) host(location string) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	if location == "" || location == config.DefaultGCPLocation {
		return "https://aiplatform.googleapis.com"
	}
	return "https://" + location + "-aiplatform.googleapis.com"
}

func (s *VertexStrategy) BuildHeaders(rc *RequestContext, d auth.Details) http.Header {
	h := baseHeaders(rc.Header)
	h.Set(auth.HeaderAuthorization, "Bearer "+d.GCPToken)
	if h.Get(auth.HeaderContentType) == "" && len(rc.Body) > 0 {
		h.Set(auth.HeaderContentType, "application/json")
	}
	return h
}

// TransformBody namespaces bare model names, drops reasoning_effort "none"
// and forces every safety threshold to OFF.
func (s *VertexStrategy) TransformBody(rc *RequestContext) ([]byte, *auth.TerminalError) {
	if len(strings.TrimSpace(string(rc.Body))) == 0 {
		return rc.Body, nil
	}
	doc, ok := rc.JSON()
	if !ok {
		return nil, auth.Internal("request body is not valid JSON")
	}

	body := append([]byte(nil), rc.Body...)
	var err error

	if model := doc.Get("model").String(); model != "" && !strings.Contains(model, "/") {
		if body, err = sjson.SetBytes(body, "model", s.publisher+"/"+model); err != nil {
			return nil, auth.Internal("failed to rewrite model")
		}
	}
	if doc.Get("reasoning_effort").String() == "none" {
		if body, err = sjson.DeleteBytes(body, "reasoning_effort"); err != nil {
			return nil, auth.Internal("failed to rewrite reasoning_effort")
		}
	}
	if body, err = sjson.SetRawBytes(body, "extra_body.google.safety_settings", []byte(safetySettingsOff)); err != nil {
		return nil, auth.Internal("failed to rewrite safety settings")
	}
	return body, nil
}

func (s *VertexStrategy) TransformResponse(_ *RequestContext, _ auth.Details, resp *http.Response) (*http.Response, error) {
	return resp, nil
}

// stripVersion removes a leading version segment: /v1/chat/completions -> /chat/completions.
func stripVersion(path string) string {
	loc := versionPrefix.FindStringIndex(path)
	if loc == nil {
		return path
	}
	rest := path[loc[1]:]
	if strings.HasSuffix(path[:loc[1]], "/") {
		rest = "/" + rest
	}
	return rest
}
