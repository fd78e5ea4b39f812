// Package auth decides which upstream credential each attempt uses.
//
// Credential kinds:
//   - user:      caller's own key, forwarded verbatim, never retried
//   - fallback:  one pinned key for stateful traffic and listed models
//   - pool:      rotated keys for trigger-key traffic, retried across the pool
//   - anonymous: unauthenticated capability listings
package auth

import (
	"github.com/compresr/llm-relay/internal/auth/types"
)

// Re-export types for convenience
type (
	Details       = types.Details
	TokenSource   = types.TokenSource
	TerminalError = types.TerminalError
)

// Re-export constants
const (
	SourceUser      = types.SourceUser
	SourceFallback  = types.SourceFallback
	SourcePool      = types.SourcePool
	SourceAnonymous = types.SourceAnonymous

	HeaderAuthorization = types.HeaderAuthorization
	HeaderGoogAPIKey    = types.HeaderGoogAPIKey
	HeaderXAPIKey       = types.HeaderXAPIKey
	HeaderContentType   = types.HeaderContentType
	QueryKey            = types.QueryKey
)

// Re-export functions
var (
	BearerToken       = types.BearerToken
	ExtractCredential = types.ExtractCredential

	Unauthorized = types.Unauthorized
	Forbidden    = types.Forbidden
	Unavailable  = types.Unavailable
	Internal     = types.Internal
	BadGateway   = types.BadGateway
	BadRequest   = types.BadRequest
	TooLarge     = types.TooLarge
)
