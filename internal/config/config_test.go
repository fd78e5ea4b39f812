package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, DefaultSQLitePath, cfg.Store.Path)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, DefaultConfigCacheTTL, cfg.Cache.ConfigTTL)
	assert.Equal(t, DefaultNativeBaseURL, cfg.Upstreams.NativeBaseURL)
	assert.Equal(t, DefaultNativeBaseURL, cfg.Upstreams.UploadBaseURL)
	assert.Equal(t, DefaultNativeBaseURL+DefaultOpenAIPath, cfg.Upstreams.OpenAIBaseURL)
	assert.Equal(t, DefaultModelNamespace, cfg.Upstreams.ModelNamespace)
	assert.True(t, cfg.Refresh.Enabled)
	assert.Equal(t, DefaultRefreshSchedule, cfg.Refresh.Schedule)
	assert.True(t, cfg.Monitoring.MetricsEnabled)
	assert.False(t, cfg.Monitoring.Telemetry.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	t.Setenv("RELAY_TEST_PORT", "9100")
	t.Setenv("RELAY_TEST_REDIS", "")

	cfg, err := Parse([]byte(`
server:
  port: ${RELAY_TEST_PORT}
  public_url: https://relay.example.com
cache:
  type: redis
  redis_addr: ${RELAY_TEST_REDIS:-localhost:6379}
  config_ttl: 10m
upstreams:
  native_base_url: http://native.example
monitoring:
  log_format: json
  telemetry:
    enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://relay.example.com", cfg.Server.PublicURL)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ConfigTTL)
	assert.Equal(t, "http://native.example", cfg.Upstreams.UploadBaseURL)
	assert.Equal(t, "http://native.example"+DefaultOpenAIPath, cfg.Upstreams.OpenAIBaseURL)
	assert.Equal(t, "json", cfg.Monitoring.LogFormat)
	assert.Equal(t, DefaultTelemetryPath, cfg.Monitoring.Telemetry.LogPath)
	// Unset keys keep defaults.
	assert.Equal(t, "sqlite", cfg.Store.Type)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "store type", yaml: "store:\n  type: etcd\n"},
		{name: "cache type", yaml: "cache:\n  type: memcached\n"},
		{name: "redis without addr", yaml: "cache:\n  type: redis\n"},
		{name: "port range", yaml: "server:\n  port: 70000\n"},
		{name: "log format", yaml: "monitoring:\n  log_format: xml\n"},
		{name: "malformed yaml", yaml: "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  type: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Empty(t, cfg.Store.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("RELAY_TEST_SET", "value")
	t.Setenv("RELAY_TEST_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${RELAY_TEST_SET}", "value"},
		{"${RELAY_TEST_SET:-other}", "value"},
		{"${RELAY_TEST_EMPTY:-fallback}", "fallback"},
		{"${RELAY_TEST_UNSET_123}", ""},
		{"a-${RELAY_TEST_SET}-b", "a-value-b"},
		{"$RELAY_TEST_SET", "$RELAY_TEST_SET"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandEnvWithDefaults(tt.in), tt.in)
	}
}
