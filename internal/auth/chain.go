package auth

import (
	"net/http"

	"github.com/samber/lo"
)

// ChainAuthenticator tries authenticators in order; the first success wins.
type ChainAuthenticator struct {
	authenticators []Authenticator
}

// NewChainAuthenticator creates a chain.
func NewChainAuthenticator(authenticators ...Authenticator) *ChainAuthenticator {
	return &ChainAuthenticator{authenticators: authenticators}
}

// Validate returns the first valid result, or the last failure with type none.
func (c *ChainAuthenticator) Validate(r *http.Request) Result {
	if len(c.authenticators) == 0 {
		return fail(TypeNone, "no authentication configured")
	}

	result := lo.Reduce(c.authenticators, func(acc Result, a Authenticator, _ int) Result {
		if acc.Valid {
			return acc
		}
		return a.Validate(r)
	}, Result{Type: TypeNone})

	if !result.Valid {
		return fail(TypeNone, result.Error)
	}
	return result
}

// Type implements Authenticator.
func (c *ChainAuthenticator) Type() Type { return TypeNone }
