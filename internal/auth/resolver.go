package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/auth/types"
	"github.com/compresr/llm-relay/internal/gcp"
	"github.com/compresr/llm-relay/internal/pool"
	"github.com/compresr/llm-relay/internal/utils"
)

// CredentialPool is the view of pool settings the resolver needs.
type CredentialPool interface {
	IsTriggerKey(ctx context.Context, credential string) bool
	NextPoolKey(ctx context.Context) (string, bool)
	FallbackKey(ctx context.Context) string
	IsFallbackModel(ctx context.Context, model string) bool
	RetryLimit(ctx context.Context) int
	GCPCredentials(ctx context.Context) []pool.ServiceAccount
}

// TokenProvider hands out cloud ML access tokens.
type TokenProvider interface {
	Token(ctx context.Context, accounts []pool.ServiceAccount) (gcp.Token, error)
}

// Request is what the resolver needs to know about one attempt.
type Request struct {
	Credential string
	Model      string
	Attempt    int
	Stateful   bool
	Method     string
	Path       string
}

// IsCapabilityListing reports whether the request only lists models.
// Such requests may proceed without any credential.
func (r Request) IsCapabilityListing() bool {
	if r.Method != "" && r.Method != http.MethodGet {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(r.Path, "/"), "/models")
}

// Resolver implements the credential state machine.
type Resolver struct {
	pool   CredentialPool
	tokens TokenProvider
}

// NewResolver creates a resolver. tokens may be nil when no cloud ML backend is used.
func NewResolver(p CredentialPool, tokens TokenProvider) *Resolver {
	return &Resolver{pool: p, tokens: tokens}
}

// Resolve picks the credential for an API-key backend attempt.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Details, *TerminalError) {
	if req.Attempt < 1 {
		req.Attempt = 1
	}
	isTrigger := r.pool.IsTriggerKey(ctx, req.Credential)

	// A caller's own key is never substituted or retried.
	if req.Credential != "" && !isTrigger {
		return Details{Credential: req.Credential, Source: SourceUser, MaxRetries: 1}, nil
	}

	if req.Stateful {
		if req.Credential == "" {
			return Details{}, types.Unauthorized("stateful requests require a credential")
		}
		fallback := r.pool.FallbackKey(ctx)
		if fallback == "" {
			return Details{}, types.Unavailable("no fallback key configured for stateful requests")
		}
		return Details{Credential: fallback, Source: SourceFallback, MaxRetries: 1}, nil
	}

	if req.Attempt > 1 {
		if !isTrigger {
			return Details{}, types.Unauthorized("credential is not eligible for retries")
		}
		key, ok := r.pool.NextPoolKey(ctx)
		if !ok {
			return Details{}, types.Unavailable("credential pool exhausted")
		}
		log.Debug().Int("attempt", req.Attempt).Str("key", utils.MaskKey(key)).Msg("auth: rotated pool credential")
		return Details{Credential: key, Source: SourcePool}, nil
	}

	if r.pool.IsFallbackModel(ctx, req.Model) {
		if fallback := r.pool.FallbackKey(ctx); fallback != "" {
			return Details{Credential: fallback, Source: SourceFallback, MaxRetries: 1}, nil
		}
	}

	if key, ok := r.pool.NextPoolKey(ctx); ok {
		maxRetries := 1
		if isTrigger {
			maxRetries = max(r.pool.RetryLimit(ctx), 1)
		}
		return Details{Credential: key, Source: SourcePool, MaxRetries: maxRetries}, nil
	}

	if req.IsCapabilityListing() {
		return Details{Source: SourceAnonymous, MaxRetries: 1}, nil
	}
	return Details{}, types.Unauthorized("no usable credential")
}

// ResolveGCP picks a cloud ML access token. Only trigger keys may use the
// cloud ML platform; every attempt draws a random service account.
func (r *Resolver) ResolveGCP(ctx context.Context, req Request) (Details, *TerminalError) {
	if req.Credential == "" {
		return Details{}, types.Unauthorized("missing credential")
	}
	if !r.pool.IsTriggerKey(ctx, req.Credential) {
		return Details{}, types.Forbidden("credential may not use this model")
	}
	if r.tokens == nil {
		return Details{}, types.Unavailable("cloud ML backend is not configured")
	}

	tok, err := r.tokens.Token(ctx, r.pool.GCPCredentials(ctx))
	if err != nil {
		if !errors.Is(err, gcp.ErrNoServiceAccounts) {
			log.Error().Err(err).Msg("auth: cloud access token unavailable")
		}
		return Details{}, types.Unavailable("cloud ML access token unavailable")
	}
	if tok.AccessToken == "" || tok.ProjectID == "" {
		return Details{}, types.Unavailable("cloud ML project or token missing")
	}

	return Details{
		Source:     SourcePool,
		GCPToken:   tok.AccessToken,
		GCPProject: tok.ProjectID,
		MaxRetries: r.pool.RetryLimit(ctx),
	}, nil
}
