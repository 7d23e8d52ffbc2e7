package auth

import "net/http"

// HeaderAPIKey carries the caller's keygate API key.
const HeaderAPIKey = "x-api-key"

// APIKeyAuthenticator accepts requests whose x-api-key matches.
type APIKeyAuthenticator struct {
	expected secret
}

// NewAPIKeyAuthenticator creates an authenticator for expectedKey.
func NewAPIKeyAuthenticator(expectedKey string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{expected: newSecret(expectedKey)}
}

// Validate implements Authenticator.
func (a *APIKeyAuthenticator) Validate(r *http.Request) Result {
	provided := r.Header.Get(HeaderAPIKey)
	if provided == "" {
		return fail(TypeAPIKey, "missing x-api-key header")
	}
	if !a.expected.matches(provided) {
		return fail(TypeAPIKey, "invalid x-api-key")
	}
	return Result{Valid: true, Type: TypeAPIKey}
}

// Type implements Authenticator.
func (a *APIKeyAuthenticator) Type() Type { return TypeAPIKey }
