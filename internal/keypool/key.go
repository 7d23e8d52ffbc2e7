// Package keypool holds the set of upstream API credentials shared by every
// caller of keygate, together with their busy, cooldown and counter state.
//
// Credentials are discovered from an env-style Source, held by a Pool and
// mutated only through Pool methods. Readers observe the pool through
// Snapshot, which returns an immutable view without taking the pool lock.
//
// Example usage:
//
//	pool := keypool.NewPool(keypool.Config{Name: "ZHIPU_API_KEY"})
//	pool.Initialize(keypool.EnvSource{})
//	cred, _, err := pool.TryClaim()
//	if err == nil && cred != nil {
//	    defer pool.Release(cred)
//	}
package keypool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/omarluq/keygate/internal/ratelimit"
)

// Credential is one upstream API key.
//
// Identity fields are immutable after construction. Mutable state is owned by
// the Pool and guarded by the pool mutex.
//
//nolint:govet // fieldalignment: struct ordered for clarity over memory optimization
type Credential struct {
	// Identity
	name   string
	secret string
	id     string

	// Mutable state (pool mutex)
	busySince        time.Time
	rateLimitedUntil time.Time
	requestCount     int64
	errorCount       int64
	busy             bool

	limiter ratelimit.RateLimiter // pool mutex
}

// newCredential builds a credential. The ID is the first 8 hex characters of
// the SHA-256 of the secret and is only used to identify the key in logs.
func newCredential(name, secret string, rpm int) *Credential {
	// codeql[go/weak-sensitive-data-hashing] SHA-256 used for stable key identification, not security comparison
	// #nosec G401 -- SHA-256 used for stable key identification, not security comparison
	hash := sha256.Sum256([]byte(secret))

	c := &Credential{
		name:   name,
		secret: secret,
		id:     hex.EncodeToString(hash[:])[:8],
	}
	if rpm > 0 {
		c.limiter = ratelimit.NewTokenBucketLimiter(rpm)
	}
	return c
}

// Name returns the credential's unique name, e.g. ZHIPU_API_KEY_2.
func (c *Credential) Name() string { return c.name }

// Secret returns the raw API key.
func (c *Credential) Secret() string { return c.secret }

// ID returns the short hash identifier used in logs.
func (c *Credential) ID() string { return c.id }

// String never includes the secret.
func (c *Credential) String() string {
	return fmt.Sprintf("Credential[%s id=%s]", c.name, c.id)
}

func (c *Credential) coolingDown(now time.Time) bool {
	return now.Before(c.rateLimitedUntil)
}

func (c *Credential) state() CredentialState {
	return CredentialState{
		Name:             c.name,
		ID:               c.id,
		Busy:             c.busy,
		BusySince:        c.busySince,
		RateLimitedUntil: c.rateLimitedUntil,
		RequestCount:     c.requestCount,
		ErrorCount:       c.errorCount,
	}
}

// CredentialState is a read-only copy of one credential's state.
type CredentialState struct {
	BusySince        time.Time `json:"busy_since,omitempty"`
	RateLimitedUntil time.Time `json:"rate_limited_until,omitempty"`
	Name             string    `json:"name"`
	ID               string    `json:"id"`
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
	Busy             bool      `json:"busy"`
}

// CoolingDown reports whether the credential is still inside its rate-limit
// cooldown at now.
func (s CredentialState) CoolingDown(now time.Time) bool {
	return now.Before(s.RateLimitedUntil)
}
