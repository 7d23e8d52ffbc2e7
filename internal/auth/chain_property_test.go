package auth_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/omarluq/keygate/internal/auth"
)

func TestAuthenticatorProperties(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	nonEmpty := gen.AlphaString().SuchThat(func(s string) bool { return s != "" })

	properties.Property("the configured key always authenticates", prop.ForAll(
		func(key string) bool {
			return auth.FromSettings(key, "", false).Validate(request(key, "")).Valid
		},
		nonEmpty,
	))

	properties.Property("any other key is rejected", prop.ForAll(
		func(expected, provided string) bool {
			if expected == provided {
				return true
			}
			return !auth.FromSettings(expected, "", false).Validate(request(provided, "")).Valid
		},
		nonEmpty,
		nonEmpty,
	))

	properties.Property("chain order never changes the verdict", prop.ForAll(
		func(key, token, providedKey, providedToken string) bool {
			a := auth.NewChainAuthenticator(auth.NewBearerAuthenticator(token), auth.NewAPIKeyAuthenticator(key))
			b := auth.NewChainAuthenticator(auth.NewAPIKeyAuthenticator(key), auth.NewBearerAuthenticator(token))
			req := request(providedKey, "Bearer "+providedToken)
			return a.Validate(req).Valid == b.Validate(req).Valid
		},
		nonEmpty, nonEmpty, nonEmpty, nonEmpty,
	))

	properties.TestingRun(t)
}
