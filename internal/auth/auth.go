// Package auth guards the keygate HTTP surface.
//
// Callers present either an x-api-key header or an Authorization: Bearer
// token. Expected secrets are hashed once at construction and compared in
// constant time.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// Type names the credential form a request used.
type Type string

// Supported credential forms.
const (
	TypeAPIKey Type = "api_key"
	TypeBearer Type = "bearer"
	TypeNone   Type = "none"
)

// Result is the outcome of one authentication attempt.
type Result struct {
	Type  Type
	Error string
	Valid bool
}

func fail(t Type, msg string) Result {
	return Result{Type: t, Error: msg}
}

// Authenticator checks a request for acceptable credentials.
type Authenticator interface {
	Validate(r *http.Request) Result
	Type() Type
}

// secret is a pre-hashed expected value.
type secret [sha256.Size]byte

func newSecret(s string) secret {
	// #nosec G401 -- high-entropy API secrets, not passwords
	return sha256.Sum256([]byte(s))
}

func (s secret) matches(provided string) bool {
	h := sha256.Sum256([]byte(provided))
	return subtle.ConstantTimeCompare(h[:], s[:]) == 1
}

// FromSettings builds the authenticator for the given settings. Bearer is
// tried before the API key. Nil means authentication is disabled.
func FromSettings(apiKey, bearerSecret string, allowBearer bool) Authenticator {
	var chain []Authenticator
	if allowBearer {
		chain = append(chain, NewBearerAuthenticator(bearerSecret))
	}
	if apiKey != "" {
		chain = append(chain, NewAPIKeyAuthenticator(apiKey))
	}

	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	default:
		return NewChainAuthenticator(chain...)
	}
}
