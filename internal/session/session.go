// Package session runs one chat call per user through the exclusive gate.
//
// A call registers with the user tracker (superseding any older call of the
// same user), leases a credential, calls upstream and releases. Rate-limited
// calls cool the credential down and retry on a freshly leased one after the
// same fixed delay the rotator uses.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/omarluq/keygate/internal/chat"
	"github.com/omarluq/keygate/internal/gate"
	"github.com/omarluq/keygate/internal/health"
	"github.com/omarluq/keygate/internal/keypool"
	"github.com/omarluq/keygate/internal/ratelimit"
	"github.com/omarluq/keygate/internal/rotation"
	"github.com/omarluq/keygate/internal/tracker"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

// ErrAcquireTimeout means no credential became free within the acquire timeout.
var ErrAcquireTimeout = errors.New("session: timed out waiting for a free API key")

// DefaultMaxRetries is the attempt budget per call.
const DefaultMaxRetries = 3

// Options tune the dispatcher. Zero durations select rotation defaults.
type Options struct {
	AcquireTimeout mo.Option[time.Duration]
	Cooldown       time.Duration
	RetryDelay     time.Duration
	MaxRetries     int
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = rotation.DefaultCooldown
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = rotation.DefaultRetryDelay
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	return o
}

// Dispatcher serves per-user chat calls. Safe for concurrent use.
type Dispatcher struct {
	gate    gate.Gate
	pool    *keypool.Pool
	client  chat.Completer
	users   *tracker.Tracker
	health  *health.Tracker
	options atomic.Pointer[Options]
}

// New creates a Dispatcher. healthTracker may be nil.
func New(
	g gate.Gate,
	pool *keypool.Pool,
	client chat.Completer,
	users *tracker.Tracker,
	healthTracker *health.Tracker,
	opts Options,
) *Dispatcher {
	d := &Dispatcher{
		gate:   g,
		pool:   pool,
		client: client,
		users:  users,
		health: healthTracker,
	}
	d.SetOptions(opts)
	return d
}

// SetOptions replaces the options, e.g. on config reload.
func (d *Dispatcher) SetOptions(opts Options) {
	o := opts.withDefaults()
	d.options.Store(&o)
}

// Options returns the active options.
func (d *Dispatcher) Options() Options {
	return *d.options.Load()
}

// Chat performs req on behalf of userID.
//
// Errors: tracker.ErrSuperseded when a newer call for the same user
// replaced this one, ErrAcquireTimeout when no key freed up in time,
// *rotation.ExhaustedError when every attempt was rate limited,
// keypool.ErrNoCredentials, or the upstream error.
func (d *Dispatcher) Chat(ctx context.Context, userID string, req *chat.Request) (*chat.Response, error) {
	opts := d.Options()
	task := tracker.NewTask(ctx)
	d.users.Register(userID, task, "")
	defer func() {
		d.users.Finish(userID, task)
		task.Complete()
	}()

	logger := log.With().Str("user_id", userID).Str("task_id", task.ID()).Logger()
	tctx := task.Context()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		resp, err := d.once(tctx, userID, task, req, opts)
		if err == nil {
			return resp, nil
		}
		if task.Superseded() {
			logger.Info().Msg("Request superseded by a newer one")
			return nil, tracker.ErrSuperseded
		}
		if !ratelimit.IsRateLimited(err) {
			return nil, err
		}

		lastErr = err
		logger.Warn().
			Int("attempt", attempt).
			Int("max_retries", opts.MaxRetries).
			Err(err).
			Msg("Rate limited, retrying with another key")
		if attempt == opts.MaxRetries {
			break
		}
		if err := sleep(tctx, opts.RetryDelay); err != nil {
			if task.Superseded() {
				return nil, tracker.ErrSuperseded
			}
			return nil, err
		}
	}
	return nil, &rotation.ExhaustedError{Attempts: opts.MaxRetries, Err: lastErr}
}

// once leases a credential, calls upstream and always releases.
func (d *Dispatcher) once(
	ctx context.Context,
	userID string,
	task *tracker.Task,
	req *chat.Request,
	opts Options,
) (*chat.Response, error) {
	opt, err := d.gate.Acquire(ctx, opts.AcquireTimeout)
	if err != nil {
		return nil, err
	}
	lease, ok := opt.Get()
	if !ok {
		return nil, ErrAcquireTimeout
	}
	name := lease.Name()
	defer func() {
		d.gate.Release(lease)
		log.Debug().
			Str("user_id", userID).
			Str("key_name", name).
			Dur("held", time.Since(lease.AcquiredAt())).
			Msg("Released key lease")
	}()

	d.users.Bind(userID, task, name, lease.AcquiredAt())

	if !d.pool.Allow(ctx, name) {
		return nil, fmt.Errorf("key %s: %w", name, ratelimit.ErrRateLimitExceeded)
	}

	resp, err := d.client.Complete(ctx, lease.Secret(), req)
	switch {
	case err == nil:
		d.pool.MarkSuccess(name)
		d.health.RecordSuccess(name)
	case ratelimit.IsRateLimited(err):
		d.pool.MarkRateLimited(name, time.Now().Add(opts.Cooldown))
	case errors.Is(err, context.Canceled):
		// not the key's fault
	default:
		d.pool.MarkError(name)
		d.health.RecordFailure(name, err)
	}
	return resp, err
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
