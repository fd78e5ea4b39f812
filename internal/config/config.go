// Package config loads the gateway's bootstrap configuration.
//
// DESIGN: Bootstrap config only covers process wiring (listen address,
// collaborators, upstream hosts, log settings). Credentials and routing
// tables are dynamic and live in the config cascade, so they can change
// without a restart.
//
// Values may reference the environment with ${VAR} or ${VAR:-default}.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compresr/llm-relay/internal/monitoring"
)

// Config is the root bootstrap configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Upstreams  UpstreamsConfig  `yaml:"upstreams"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PublicURL is the externally visible origin used when rewriting
	// resumable upload URLs. Empty means "derive from the inbound request".
	PublicURL string `yaml:"public_url"`
}

// StoreConfig selects the durable key-value store.
type StoreConfig struct {
	Type string `yaml:"type"` // "sqlite" or "memory"
	Path string `yaml:"path"`
}

// CacheConfig selects the regional cache.
type CacheConfig struct {
	Type      string        `yaml:"type"` // "memory" or "redis"
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	Password  string        `yaml:"password"`
	ConfigTTL time.Duration `yaml:"config_ttl"`
}

// UpstreamsConfig holds backend hosts. Tests point these at httptest servers.
type UpstreamsConfig struct {
	NativeBaseURL  string        `yaml:"native_base_url"`
	UploadBaseURL  string        `yaml:"upload_base_url"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	VertexBaseURL  string        `yaml:"vertex_base_url"` // overrides host naming rules when set
	ModelNamespace string        `yaml:"model_namespace"`
	Timeout        time.Duration `yaml:"timeout"`
}

// RefreshConfig controls the scheduled cascade reload.
type RefreshConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// MonitoringConfig holds logging and metrics settings.
type MonitoringConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // "json", "console" or "auto"
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// Telemetry appends one JSONL event per request.
	Telemetry monitoring.TelemetryConfig `yaml:"telemetry"`
}

// Default returns a configuration that runs with no file at all.
func Default() *Config {
	cfg := base()
	cfg.ApplyDefaults()
	return cfg
}

// base holds the defaults a zero value cannot express. Everything else is
// filled by ApplyDefaults after decoding, so derived values such as the
// upload host follow an overridden native host.
func base() *Config {
	return &Config{
		Refresh:    RefreshConfig{Enabled: true},
		Monitoring: MonitoringConfig{MetricsEnabled: true},
	}
}

// Load reads a YAML file, expands ${VAR} references and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config.
func Parse(data []byte) (*Config, error) {
	cfg := base()
	expanded := ExpandEnvWithDefaults(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	if c.Store.Type == "sqlite" && c.Store.Path == "" {
		c.Store.Path = DefaultSQLitePath
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.ConfigTTL == 0 {
		c.Cache.ConfigTTL = DefaultConfigCacheTTL
	}
	if c.Upstreams.NativeBaseURL == "" {
		c.Upstreams.NativeBaseURL = DefaultNativeBaseURL
	}
	if c.Upstreams.UploadBaseURL == "" {
		c.Upstreams.UploadBaseURL = c.Upstreams.NativeBaseURL
	}
	if c.Upstreams.OpenAIBaseURL == "" {
		c.Upstreams.OpenAIBaseURL = strings.TrimSuffix(c.Upstreams.NativeBaseURL, "/") + DefaultOpenAIPath
	}
	if c.Upstreams.ModelNamespace == "" {
		c.Upstreams.ModelNamespace = DefaultModelNamespace
	}
	if c.Upstreams.Timeout == 0 {
		c.Upstreams.Timeout = DefaultUpstreamTimeout
	}
	if c.Refresh.Schedule == "" {
		c.Refresh.Schedule = DefaultRefreshSchedule
	}
	if c.Monitoring.LogLevel == "" {
		c.Monitoring.LogLevel = "info"
	}
	if c.Monitoring.LogFormat == "" {
		c.Monitoring.LogFormat = "auto"
	}
	if c.Monitoring.Telemetry.Enabled && c.Monitoring.Telemetry.LogPath == "" {
		c.Monitoring.Telemetry.LogPath = DefaultTelemetryPath
	}
}

// Validate checks collaborator selections.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported store type %q", c.Store.Type)
	}
	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache type %q", c.Cache.Type)
	}
	switch c.Monitoring.LogFormat {
	case monitoring.LogFormatJSON, monitoring.LogFormatConsole, monitoring.LogFormatAuto:
	default:
		return fmt.Errorf("unsupported log format %q", c.Monitoring.LogFormat)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvWithDefaults expands ${VAR:-default} and ${VAR} references.
func ExpandEnvWithDefaults(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRefPattern.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}
