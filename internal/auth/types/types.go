// Package types defines credential types shared by the resolver and strategies.
package types

import (
	"net/http"
	"strings"
)

// =============================================================================
// TOKEN SOURCE
// =============================================================================

// TokenSource records where the outbound credential came from.
type TokenSource string

const (
	// SourceUser is the caller's own credential, forwarded verbatim.
	SourceUser TokenSource = "user"

	// SourceFallback is the pinned fallback credential.
	SourceFallback TokenSource = "fallback"

	// SourcePool is a rotated pool credential or a cloud service-account token.
	SourcePool TokenSource = "pool"

	// SourceAnonymous is an unauthenticated capability listing.
	SourceAnonymous TokenSource = "anonymous"
)

// Details is the credential decision for one upstream attempt.
type Details struct {
	// Credential is the outbound API key. Empty for anonymous and cloud ML calls.
	Credential string

	// Source is where Credential came from.
	Source TokenSource

	// GCPToken and GCPProject are set for the cloud ML platform.
	GCPToken   string
	GCPProject string

	// MaxRetries is the attempt budget, fixed by the first attempt.
	MaxRetries int
}

// =============================================================================
// HEADER CONSTANTS
// =============================================================================

const (
	// HeaderAuthorization is the standard Authorization header.
	HeaderAuthorization = "Authorization"

	// HeaderGoogAPIKey is the native protocol's API key header.
	HeaderGoogAPIKey = "x-goog-api-key"

	// HeaderXAPIKey is a common vendor API key header, stripped on the way out.
	HeaderXAPIKey = "x-api-key"

	// HeaderContentType is the Content-Type header.
	HeaderContentType = "Content-Type"

	// QueryKey is the query parameter carrying a credential.
	QueryKey = "key"
)

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// BearerToken extracts the bearer token value from an Authorization header.
// Input: "Bearer AIza..." -> Output: "AIza..."
// Input: "AIza..." -> Output: "AIza..." (pass-through if no Bearer prefix)
func BearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return ""
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) >= len(bearerPrefix) && strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authHeader[len(bearerPrefix):])
	}

	// If no Bearer prefix, return as-is (some clients send bare tokens)
	return authHeader
}

// ExtractCredential returns the inbound credential, checking the key query
// parameter, then the Authorization header, then x-goog-api-key.
func ExtractCredential(r *http.Request) string {
	if r.URL != nil {
		if k := strings.TrimSpace(r.URL.Query().Get(QueryKey)); k != "" {
			return k
		}
	}
	if k := BearerToken(r.Header.Get(HeaderAuthorization)); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get(HeaderGoogAPIKey))
}
