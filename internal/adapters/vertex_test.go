package adapters

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compresr/llm-relay/internal/auth"
)

func TestVertex_Authenticate(t *testing.T) {
	res := &stubResolver{details: auth.Details{Source: auth.SourcePool, GCPToken: "ya29", GCPProject: "p", MaxRetries: 3}}
	s := NewVertexStrategy(res, fixedLocation("global"), testUpstreams())
	rc := newRC(t, http.MethodPost, "/llm/v1/chat/completions", `{"model":"claude-x"}`, "/llm")

	d, terr := s.Authenticate(context.Background(), rc, 2)
	require.Nil(t, terr)
	assert.Equal(t, "ya29", d.GCPToken)
	assert.Equal(t, "claude-x", res.last.Model)
	assert.Equal(t, 2, res.last.Attempt)
}

func TestVertex_BuildTargetURL(t *testing.T) {
	d := auth.Details{GCPProject: "proj", GCPToken: "ya29"}
	tests := []struct {
		location string
		path     string
		want     string
	}{
		{"global", "/llm/v1/chat/completions", "https://aiplatform.googleapis.com/v1/projects/proj/locations/global/endpoints/openapi/chat/completions"},
		{"us-east5", "/llm/v1beta/chat/completions", "https://us-east5-aiplatform.googleapis.com/v1/projects/proj/locations/us-east5/endpoints/openapi/chat/completions"},
		{"global", "/llm/chat/completions", "https://aiplatform.googleapis.com/v1/projects/proj/locations/global/endpoints/openapi/chat/completions"},
	}
	for _, tt := range tests {
		t.Run(tt.location+tt.path, func(t *testing.T) {
			s := NewVertexStrategy(&stubResolver{}, fixedLocation(tt.location), testUpstreams())
			got, terr := s.BuildTargetURL(newRC(t, http.MethodPost, tt.path, "{}", "/llm"), d)
			require.Nil(t, terr)
			assert.Equal(t, tt.want, got)
		})
	}

	s := NewVertexStrategy(&stubResolver{}, fixedLocation("global"), testUpstreams())
	_, terr := s.BuildTargetURL(newRC(t, http.MethodPost, "/llm/v1/chat/completions", "{}", "/llm"), auth.Details{})
	require.NotNil(t, terr)
	assert.Equal(t, http.StatusServiceUnavailable, terr.Status)
}

func TestVertex_BuildHeaders(t *testing.T) {
	s := NewVertexStrategy(&stubResolver{}, fixedLocation("global"), testUpstreams())
	rc := newRC(t, http.MethodPost, "/llm/v1/chat/completions?key=trig", `{}`, "/llm")
	rc.Header.Set("Authorization", "Bearer trig")

	h := s.BuildHeaders(rc, auth.Details{GCPToken: "ya29"})
	assert.Equal(t, "Bearer ya29", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestVertex_TransformBody(t *testing.T) {
	s := NewVertexStrategy(&stubResolver{}, fixedLocation("global"), testUpstreams())

	t.Run("rewrites fields", func(t *testing.T) {
		rc := newRC(t, http.MethodPost, "/llm/v1/chat/completions", `{"model":"gemini-x","reasoning_effort":"none","messages":[]}`, "/llm")
		body, terr := s.TransformBody(rc)
		require.Nil(t, terr)

		doc := gjson.ParseBytes(body)
		assert.Equal(t, "google/gemini-x", doc.Get("model").String())
		assert.False(t, doc.Get("reasoning_effort").Exists())
		assert.True(t, doc.Get("messages").IsArray())

		settings := doc.Get("extra_body.google.safety_settings").Array()
		require.Len(t, settings, len(harmCategories))
		for _, setting := range settings {
			assert.Equal(t, "OFF", setting.Get("threshold").String())
		}
		assert.Contains(t, string(rc.Body), `"reasoning_effort":"none"`, "original body untouched")
	})

	t.Run("keeps namespaced model and real effort", func(t *testing.T) {
		rc := newRC(t, http.MethodPost, "/llm/v1/chat/completions", `{"model":"meta/llama","reasoning_effort":"low"}`, "/llm")
		body, terr := s.TransformBody(rc)
		require.Nil(t, terr)
		assert.Equal(t, "meta/llama", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "low", gjson.GetBytes(body, "reasoning_effort").String())
	})

	t.Run("overrides caller safety settings", func(t *testing.T) {
		rc := newRC(t, http.MethodPost, "/llm/v1/chat/completions", `{"model":"m","extra_body":{"google":{"safety_settings":[{"category":"HARM_CATEGORY_HARASSMENT","threshold":"BLOCK_LOW_AND_ABOVE"}]}}}`, "/llm")
		body, terr := s.TransformBody(rc)
		require.Nil(t, terr)
		for _, setting := range gjson.GetBytes(body, "extra_body.google.safety_settings").Array() {
			assert.Equal(t, "OFF", setting.Get("threshold").String())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rc := newRC(t, http.MethodPost, "/llm/v1/chat/completions", `{"model":`, "/llm")
		_, terr := s.TransformBody(rc)
		require.NotNil(t, terr)
		assert.Equal(t, http.StatusInternalServerError, terr.Status)
	})

	t.Run("empty body", func(t *testing.T) {
		rc := newRC(t, http.MethodGet, "/llm/v1/models", "", "/llm")
		body, terr := s.TransformBody(rc)
		require.Nil(t, terr)
		assert.Empty(t, body)
	})
}

func TestStripVersion(t *testing.T) {
	assert.Equal(t, "/chat/completions", stripVersion("/v1/chat/completions"))
	assert.Equal(t, "/models", stripVersion("/v1beta/models"))
	assert.Equal(t, "/x", stripVersion("/v1alpha1/x"))
	assert.Equal(t, "", stripVersion("/v1"))
	assert.Equal(t, "/chat", stripVersion("/chat"))
	assert.Equal(t, "/v1x/chat", stripVersion("/v1x/chat"))
}
