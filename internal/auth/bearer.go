package auth

import (
	"net/http"
	"strings"
)

// BearerAuthenticator accepts Authorization: Bearer tokens. Without a
// configured secret any non-empty token passes.
type BearerAuthenticator struct {
	expected secret
	check    bool
}

// NewBearerAuthenticator creates a bearer authenticator. An empty secret
// disables the token comparison.
func NewBearerAuthenticator(tokenSecret string) *BearerAuthenticator {
	if tokenSecret == "" {
		return &BearerAuthenticator{}
	}
	return &BearerAuthenticator{expected: newSecret(tokenSecret), check: true}
}

// Validate implements Authenticator.
func (a *BearerAuthenticator) Validate(r *http.Request) Result {
	header := r.Header.Get("Authorization")
	if header == "" {
		return fail(TypeBearer, "missing authorization header")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return fail(TypeBearer, "invalid authorization scheme")
	}

	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return fail(TypeBearer, "empty bearer token")
	case a.check && !a.expected.matches(token):
		return fail(TypeBearer, "invalid bearer token")
	}
	return Result{Valid: true, Type: TypeBearer}
}

// Type implements Authenticator.
func (a *BearerAuthenticator) Type() Type { return TypeBearer }
