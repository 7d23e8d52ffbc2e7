// Package rotation performs chat calls that rotate to another credential
// whenever the upstream signals rate limiting.
//
// Unlike the gate path, the rotator does not mark credentials busy: several
// callers may share a credential. It trades strict exclusivity for
// throughput.
//
// Retry delay policy: a fixed short sleep (Options.RetryDelay, default 500ms)
// between every attempt. The session package uses the same fixed delay.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/omarluq/keygate/internal/chat"
	"github.com/omarluq/keygate/internal/health"
	"github.com/omarluq/keygate/internal/keypool"
	"github.com/omarluq/keygate/internal/ratelimit"
	"github.com/rs/zerolog/log"
)

// Defaults.
const (
	DefaultCooldown   = 30 * time.Second
	DefaultRetryDelay = 500 * time.Millisecond
)

// Options tune rotation. Zero values select defaults.
type Options struct {
	// Cooldown is how long a rate-limited credential is skipped.
	Cooldown time.Duration

	// RetryDelay is the fixed sleep between attempts.
	RetryDelay time.Duration

	// MaxAttempts caps attempts per call; 0 means twice the pool size.
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// ExhaustedError is returned when every attempt was rate limited. It wraps
// the last upstream error.
type ExhaustedError struct {
	Err      error
	Attempts int
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rotation: all %d attempts rate limited: %v", e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err is an ExhaustedError.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

// Rotator is the rotating caller. Safe for concurrent use.
type Rotator struct {
	pool   *keypool.Pool
	client chat.Completer
	health *health.Tracker
	opts   atomic.Pointer[Options]
	cursor atomic.Uint64
}

// New creates a Rotator. tracker may be nil.
func New(pool *keypool.Pool, client chat.Completer, tracker *health.Tracker, opts Options) *Rotator {
	r := &Rotator{
		pool:   pool,
		client: client,
		health: tracker,
	}
	r.SetOptions(opts)
	return r
}

// SetOptions replaces the options, e.g. on config reload.
func (r *Rotator) SetOptions(opts Options) {
	o := opts.withDefaults()
	r.opts.Store(&o)
}

// Options returns the active options.
func (r *Rotator) Options() Options {
	return *r.opts.Load()
}

// Current returns the name the cursor points at, or "" for an empty pool.
func (r *Rotator) Current() string {
	names := r.pool.Names()
	if len(names) == 0 {
		return ""
	}
	//nolint:gosec // Safe: modulo ensures result is within int range
	return names[int(r.cursor.Load()%uint64(len(names)))]
}

// Call sends req, rotating across credentials on rate-limit errors.
//
// Success leaves the cursor on the credential that worked. A non rate-limit
// error is returned at once. After MaxAttempts rate-limited attempts the
// result is an *ExhaustedError.
func (r *Rotator) Call(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	creds := r.pool.Credentials()
	n := len(creds)
	if n == 0 {
		return nil, keypool.ErrNoCredentials
	}

	opts := r.Options()
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2 * n
	}

	//nolint:gosec // Safe: modulo ensures result is within int range
	start := int(r.cursor.Load() % uint64(n))
	idx := r.next(creds, start, start)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cred := creds[idx]
		r.cursor.Store(uint64(idx)) //nolint:gosec // idx is a non-negative slice index

		resp, err := r.attempt(ctx, cred, req)
		if err == nil {
			r.pool.MarkSuccess(cred.Name())
			r.health.RecordSuccess(cred.Name())
			return resp, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if !ratelimit.IsRateLimited(err) {
			r.pool.MarkError(cred.Name())
			r.health.RecordFailure(cred.Name(), err)
			return nil, err
		}

		lastErr = err
		if !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
			r.pool.MarkRateLimited(cred.Name(), time.Now().Add(opts.Cooldown))
		}
		log.Warn().
			Str("key_name", cred.Name()).
			Str("key_id", cred.ID()).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Err(err).
			Msg("Rate limited, rotating key")

		if attempt == maxAttempts {
			break
		}
		idx = r.next(creds, (idx+1)%n, idx)
		if err := sleep(ctx, opts.RetryDelay); err != nil {
			return nil, err
		}
	}

	return nil, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// attempt performs one upstream call, short-circuiting when the client-side
// limiter for the credential is empty.
func (r *Rotator) attempt(ctx context.Context, cred *keypool.Credential, req *chat.Request) (*chat.Response, error) {
	if !r.pool.Allow(ctx, cred.Name()) {
		return nil, fmt.Errorf("key %s: %w", cred.Name(), ratelimit.ErrRateLimitExceeded)
	}
	return r.client.Complete(ctx, cred.Secret(), req)
}

// next returns the first index from start (wrapping) whose credential is
// neither cooling down nor behind an open circuit, or fallback.
func (r *Rotator) next(creds []*keypool.Credential, start, fallback int) int {
	n := len(creds)
	for i := range n {
		j := (start + i) % n
		name := creds[j].Name()
		if !r.pool.CoolingDown(name) && r.health.Usable(name) {
			return j
		}
	}
	return fallback
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
