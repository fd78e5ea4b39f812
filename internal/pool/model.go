// Package pool is the typed view of credential and routing settings.
//
// DESIGN: Nothing here is cached in process memory. Every accessor reads
// through the config cascade, whose cache tier keeps reads cheap, so admin
// writes are visible on the next request without a restart.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/cascade"
	"github.com/compresr/llm-relay/internal/config"
	"github.com/compresr/llm-relay/internal/monitoring"
)

// Cascade setting names. The env override of each is its upper-cased name.
const (
	NameTriggerKeys        = "trigger_keys"
	NameAPIKeys            = "api_keys"
	NameFallbackKey        = "fallback_key"
	NameFallbackModels     = "fallback_models"
	NameVertexModels       = "vertex_models"
	NameAPIRetryLimit      = "api_retry_limit"
	NameGCPCredentials     = "gcp_credentials"
	NameGCPDefaultLocation = "gcp_default_location"
	NameAPIMappings        = "api_mappings"
)

// RotationCounterKey is the store counter driving pool rotation.
const RotationCounterKey = "pool_key_index"

// Reserved prefixes cannot be overridden by stored mappings.
const (
	PrefixLLM    = "/llm"
	PrefixOpenAI = "/openai"
)

// Names lists every cascade-backed setting, in a stable order.
func Names() []string {
	return []string{
		NameTriggerKeys,
		NameAPIKeys,
		NameFallbackKey,
		NameFallbackModels,
		NameVertexModels,
		NameAPIRetryLimit,
		NameGCPCredentials,
		NameGCPDefaultLocation,
		NameAPIMappings,
	}
}

// IsReservedPrefix reports whether prefix belongs to a built-in backend.
func IsReservedPrefix(prefix string) bool {
	return prefix == PrefixLLM || prefix == PrefixOpenAI
}

// Pool reads credential settings from the cascade.
type Pool struct {
	cascade *cascade.Cascade
	metrics *monitoring.MetricsCollector
}

// New creates a Pool over c.
func New(c *cascade.Cascade, metrics *monitoring.MetricsCollector) *Pool {
	return &Pool{cascade: c, metrics: metrics}
}

// Cascade returns the underlying cascade.
func (p *Pool) Cascade() *cascade.Cascade { return p.cascade }

// TriggerKeys returns the set of substitution-triggering credentials.
func (p *Pool) TriggerKeys(ctx context.Context) map[string]struct{} {
	return cascade.Get(ctx, p.cascade, NameTriggerKeys, cascade.StringSet, nil)
}

// IsTriggerKey reports whether credential is a trigger key.
func (p *Pool) IsTriggerKey(ctx context.Context, credential string) bool {
	if credential == "" {
		return false
	}
	_, ok := p.TriggerKeys(ctx)[credential]
	return ok
}

// PoolKeys returns the rotation pool in configured order.
func (p *Pool) PoolKeys(ctx context.Context) []string {
	return cascade.Get(ctx, p.cascade, NameAPIKeys, cascade.StringList, nil)
}

// FallbackKey returns the pinned credential, or "" when none is configured.
func (p *Pool) FallbackKey(ctx context.Context) string {
	return cascade.Get(ctx, p.cascade, NameFallbackKey, cascade.NonEmptyString, "")
}

// IsFallbackModel reports whether model must use the fallback key.
func (p *Pool) IsFallbackModel(ctx context.Context, model string) bool {
	if model == "" {
		return false
	}
	_, ok := cascade.Get(ctx, p.cascade, NameFallbackModels, cascade.StringSet, nil)[model]
	return ok
}

// IsVertexModel reports whether model is served by the cloud ML platform.
func (p *Pool) IsVertexModel(ctx context.Context, model string) bool {
	if model == "" {
		return false
	}
	_, ok := cascade.Get(ctx, p.cascade, NameVertexModels, cascade.StringSet, nil)[model]
	return ok
}

// RetryLimit returns the attempt budget for pooled credentials.
func (p *Pool) RetryLimit(ctx context.Context) int {
	return cascade.Get(ctx, p.cascade, NameAPIRetryLimit, cascade.PositiveInt, config.DefaultRetryLimit)
}

// GCPDefaultLocation returns the cloud ML region.
func (p *Pool) GCPDefaultLocation(ctx context.Context) string {
	return cascade.Get(ctx, p.cascade, NameGCPDefaultLocation, cascade.NonEmptyString, config.DefaultGCPLocation)
}

// GCPCredentials returns the valid service accounts. Invalid entries are
// dropped with a warning.
func (p *Pool) GCPCredentials(ctx context.Context) []ServiceAccount {
	all := cascade.Get(ctx, p.cascade, NameGCPCredentials, ParseServiceAccounts, nil)
	valid := make([]ServiceAccount, 0, len(all))
	for i, sa := range all {
		if err := sa.Validate(); err != nil {
			log.Warn().Err(err).Int("index", i).Str("client_email", sa.ClientEmail).Msg("pool: dropping invalid service account")
			continue
		}
		valid = append(valid, sa)
	}
	return valid
}

// APIMappings returns prefix -> base URL for passthrough backends.
// Reserved prefixes are removed.
func (p *Pool) APIMappings(ctx context.Context) map[string]string {
	raw := cascade.Get(ctx, p.cascade, NameAPIMappings, cascade.JSON[map[string]string](), nil)
	out := make(map[string]string, len(raw))
	for prefix, base := range raw {
		prefix = NormalizePrefix(prefix)
		if IsReservedPrefix(prefix) {
			log.Warn().Str("prefix", prefix).Msg("pool: ignoring mapping for reserved prefix")
			continue
		}
		if prefix == "" || strings.TrimSpace(base) == "" {
			continue
		}
		out[prefix] = strings.TrimRight(strings.TrimSpace(base), "/")
	}
	return out
}

// Prefixes returns the reserved prefixes plus mapped ones, longest first.
func (p *Pool) Prefixes(ctx context.Context) []string {
	prefixes := []string{PrefixLLM, PrefixOpenAI}
	for prefix := range p.APIMappings(ctx) {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	return prefixes
}

// NormalizePrefix ensures a leading slash and no trailing slash.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}

// Reload refreshes every pool setting from the durable store into the cache.
func (p *Pool) Reload(ctx context.Context) error {
	return p.cascade.Reload(ctx, Names())
}

// =============================================================================
// SERVICE ACCOUNTS
// =============================================================================

// ServiceAccount is a cloud service-account key file.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id,omitempty"`
	TokenURI     string `json:"token_uri,omitempty"`

	// Raw is the original key file, handed to the token exchange untouched.
	Raw json.RawMessage `json:"-"`
}

// Validate checks the mandatory fields.
func (sa ServiceAccount) Validate() error {
	if sa.Type != "service_account" {
		return fmt.Errorf("type must be service_account, got %q", sa.Type)
	}
	for field, v := range map[string]string{
		"project_id":     sa.ProjectID,
		"private_key_id": sa.PrivateKeyID,
		"private_key":    sa.PrivateKey,
		"client_email":   sa.ClientEmail,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("missing %s", field)
		}
	}
	return nil
}

// ParseServiceAccounts decodes a JSON array of key files, keeping each raw entry.
func ParseServiceAccounts(raw string) ([]ServiceAccount, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &entries); err != nil {
		return nil, fmt.Errorf("invalid service account list: %w", err)
	}
	out := make([]ServiceAccount, 0, len(entries))
	for i, entry := range entries {
		var sa ServiceAccount
		if err := json.Unmarshal(entry, &sa); err != nil {
			return nil, fmt.Errorf("service account %d: %w", i, err)
		}
		sa.Raw = append(json.RawMessage(nil), entry...)
		out = append(out, sa)
	}
	return out, nil
}
