// Package gcp mints and caches cloud ML access tokens for service accounts.
//
// DESIGN: Tokens are cached in the regional cache under "gcp_token:<email>"
// for 50 minutes, below the provider's 60-minute lifetime. Each lookup picks
// a service account uniformly at random so load spreads across accounts and
// a retry usually lands on a different one. Concurrent mints for the same
// account share one exchange, which outlives the caller that started it.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/compresr/llm-relay/internal/cascade"
	"github.com/compresr/llm-relay/internal/config"
	"github.com/compresr/llm-relay/internal/monitoring"
	"github.com/compresr/llm-relay/internal/pool"
)

// CloudPlatformScope is requested for every minted token.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

const (
	cacheKeyPrefix = "gcp_token:"
	expiryMargin   = time.Minute
	mintTimeout    = 30 * time.Second
)

// ErrNoServiceAccounts is returned when no valid account is configured.
var ErrNoServiceAccounts = errors.New("no valid service accounts configured")

// Minter exchanges a service-account key for an access token.
type Minter func(ctx context.Context, sa pool.ServiceAccount) (token string, expiry time.Time, err error)

// Token is an access token plus the project it belongs to.
type Token struct {
	AccessToken string
	ProjectID   string
	ClientEmail string
}

// TokenCache is safe for concurrent use.
type TokenCache struct {
	cascade *cascade.Cascade
	mint    Minter
	ttl     time.Duration
	pick    func(n int) int
	metrics *monitoring.MetricsCollector
	group   singleflight.Group
}

// Option customizes a TokenCache.
type Option func(*TokenCache)

// WithMinter replaces the service-account JWT exchange.
func WithMinter(m Minter) Option { return func(tc *TokenCache) { tc.mint = m } }

// WithPicker replaces the uniform random account selection.
func WithPicker(pick func(n int) int) Option { return func(tc *TokenCache) { tc.pick = pick } }

// WithMetrics records cache hits and mints.
func WithMetrics(m *monitoring.MetricsCollector) Option {
	return func(tc *TokenCache) { tc.metrics = m }
}

// NewTokenCache creates a token cache over the cascade's regional cache.
func NewTokenCache(c *cascade.Cascade, opts ...Option) *TokenCache {
	tc := &TokenCache{
		cascade: c,
		mint:    MintJWT,
		ttl:     config.GCPTokenTTL,
		pick:    rand.IntN,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Token picks a random account from accounts and returns its access token.
func (tc *TokenCache) Token(ctx context.Context, accounts []pool.ServiceAccount) (Token, error) {
	if len(accounts) == 0 {
		return Token{}, ErrNoServiceAccounts
	}
	sa := accounts[tc.pick(len(accounts))]
	access, err := tc.TokenFor(ctx, sa)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: access, ProjectID: sa.ProjectID, ClientEmail: sa.ClientEmail}, nil
}

// TokenFor returns a cached token for sa, minting one on a miss.
func (tc *TokenCache) TokenFor(ctx context.Context, sa pool.ServiceAccount) (string, error) {
	key := cacheKeyPrefix + sa.ClientEmail

	ca, err := tc.cascade.Cache(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("gcp: cache unavailable, minting without cache")
		ca = nil
	}
	if ca != nil {
		if v, ok, err := ca.Get(ctx, key); err != nil {
			tc.metrics.RecordCacheError("get")
			log.Warn().Err(err).Str("client_email", sa.ClientEmail).Msg("gcp: token cache read failed")
		} else if ok && len(v) > 0 {
			tc.metrics.RecordTokenCacheHit()
			return string(v), nil
		}
	}

	ch := tc.group.DoChan(key, func() (any, error) {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mintTimeout)
		defer cancel()

		token, expiry, err := tc.mint(mctx, sa)
		if err != nil {
			tc.metrics.RecordTokenMint(false)
			return "", fmt.Errorf("mint token for %s: %w", sa.ClientEmail, err)
		}
		tc.metrics.RecordTokenMint(true)

		ttl := tc.ttl
		if !expiry.IsZero() {
			if left := time.Until(expiry) - expiryMargin; left < ttl {
				ttl = left
			}
		}
		if ca != nil && ttl > 0 {
			if err := ca.Set(mctx, key, []byte(token), ttl); err != nil {
				tc.metrics.RecordCacheError("set")
				log.Warn().Err(err).Str("client_email", sa.ClientEmail).Msg("gcp: token cache write failed")
			}
		}
		log.Debug().Str("client_email", sa.ClientEmail).Dur("ttl", ttl).Msg("gcp: minted access token")
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// MintJWT performs the standard service-account JWT bearer exchange.
// The key file's token_uri is honored.
func MintJWT(ctx context.Context, sa pool.ServiceAccount) (string, time.Time, error) {
	conf, err := google.JWTConfigFromJSON(sa.Raw, CloudPlatformScope)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse service account: %w", err)
	}
	tok, err := conf.TokenSource(ctx).Token()
	if err != nil {
		return "", time.Time{}, err
	}
	return tok.AccessToken, tok.Expiry, nil
}
