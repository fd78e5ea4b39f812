package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compresr/llm-relay/internal/adapters"
)

type staticRoutes struct {
	vertex   map[string]bool
	mappings map[string]string
}

func (s staticRoutes) Prefixes(context.Context) []string {
	return []string{"/weather/v2", "/openai", "/weather", "/llm"}
}

func (s staticRoutes) APIMappings(context.Context) map[string]string { return s.mappings }

func (s staticRoutes) IsVertexModel(_ context.Context, model string) bool { return s.vertex[model] }

func TestMatchPrefix(t *testing.T) {
	prefixes := staticRoutes{}.Prefixes(context.Background())
	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"/llm/v1/chat/completions", "/llm", true},
		{"/llm", "/llm", true},
		{"/llmx/v1", "", false},
		{"/weather/v2/today", "/weather/v2", true},
		{"/weather/today", "/weather", true},
		{"/openai/v1/models", "/openai", true},
		{"/", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := matchPrefix(tt.path, prefixes)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindFor(t *testing.T) {
	g := &Gateway{routes: staticRoutes{vertex: map[string]bool{"claude-v": true}}}

	tests := []struct {
		name      string
		method    string
		path      string
		prefix    string
		body      string
		websocket bool
		want      adapters.Kind
	}{
		{"vertex model", http.MethodPost, "/llm/v1/chat/completions", "/llm", `{"model":"claude-v"}`, false, adapters.KindVertex},
		{"openai dialect", http.MethodPost, "/llm/v1/chat/completions", "/llm", `{"model":"gemini"}`, false, adapters.KindOpenAI},
		{"native versioned path", http.MethodPost, "/llm/v1beta/models/gemini:generateContent", "/llm", `{}`, false, adapters.KindNative},
		{"native alpha path", http.MethodGet, "/llm/v1alpha/models", "/llm", ``, false, adapters.KindNative},
		{"upload", http.MethodPost, "/llm/upload/v1beta/files", "/llm", ``, false, adapters.KindNative},
		{"openai under v1beta", http.MethodPost, "/llm/v1beta/openai/chat/completions", "/llm", `{"model":"gemini"}`, false, adapters.KindOpenAI},
		{"realtime", http.MethodGet, "/llm/ws/live", "/llm", ``, true, adapters.KindNative},
		{"openai prefix", http.MethodPost, "/openai/v1/chat/completions", "/openai", `{"model":"claude-v"}`, false, adapters.KindOpenAI},
		{"mapped", http.MethodGet, "/weather/today", "/weather", ``, false, adapters.KindPassthrough},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.websocket {
				r.Header.Set("Connection", "Upgrade")
				r.Header.Set("Upgrade", "websocket")
			}
			rc := adapters.NewRequestContext(r, []byte(tt.body), tt.prefix, "id")
			assert.Equal(t, tt.want, g.kindFor(rc))
		})
	}
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, isLoopback("127.0.0.1:1234"))
	assert.True(t, isLoopback("[::1]:80"))
	assert.False(t, isLoopback("10.0.0.1:80"))
	assert.False(t, isLoopback("garbage"))
}

func TestTruncateLogValue(t *testing.T) {
	assert.Equal(t, "abc", truncateLogValue("abc", 5))
	assert.Equal(t, "ab...", truncateLogValue("abcdef", 2))
	assert.Equal(t, "abcdef", truncateLogValue("abcdef", 0))
}
