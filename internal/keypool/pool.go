package keypool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/omarluq/keygate/internal/ratelimit"
)

// Config defines how a Pool discovers and selects credentials.
type Config struct {
	// Name is the primary variable name (default ZHIPU_API_KEY).
	Name string `json:"name" yaml:"name"`

	// ListVar optionally names a variable holding comma-separated keys.
	ListVar string `json:"list_var" yaml:"list_var"`

	// Strategy is the selection strategy among free keys (round_robin, least_loaded, random).
	Strategy string `json:"strategy" yaml:"strategy"`

	// RPMLimit is a client-side requests-per-minute cap per key (0 = unlimited).
	RPMLimit int `json:"rpm_limit" yaml:"rpm_limit"`
}

// Pool holds the credential set. All methods are safe for concurrent use.
type Pool struct {
	selector Selector
	now      func() time.Time
	view     atomic.Pointer[Snapshot]
	byName   map[string]*Credential
	retired  map[string]*Credential
	cfg      Config
	creds    []*Credential
	initOnce sync.Once
	mu       sync.Mutex
}

// NewPool creates an empty pool. An unknown strategy falls back to round
// robin with a warning.
func NewPool(cfg Config) *Pool {
	selector, err := NewSelector(cfg.Strategy)
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to round_robin key selection")
		selector = NewRoundRobinSelector()
	}

	p := &Pool{
		cfg:      cfg,
		selector: selector,
		byName:   make(map[string]*Credential),
		retired:  make(map[string]*Credential),
		now:      time.Now,
	}
	p.view.Store(&Snapshot{})
	return p
}

// Initialize discovers credentials from src. Only the first call has any
// effect. It returns the number of credentials in the pool.
//
// An empty pool is not an error here; acquisitions report ErrNoCredentials.
func (p *Pool) Initialize(src Source) int {
	p.initOnce.Do(func() {
		p.load(src)
	})
	return p.Len()
}

// Reload rebuilds the credential set from src. Credentials whose name and
// secret survive keep their busy, cooldown and counter state. Removed ones are
// dropped and later releases for them are no-ops. A removed credential that is
// still held is remembered until released, so re-adding the same key cannot
// hand it out twice.
func (p *Pool) Reload(src Source) int {
	p.initOnce.Do(func() {})
	p.load(src)
	return p.Len()
}

func (p *Pool) load(src Source) {
	entries := Discover(src, p.cfg.Name, p.cfg.ListVar)

	p.mu.Lock()
	defer p.mu.Unlock()

	creds := make([]*Credential, 0, len(entries))
	byName := make(map[string]*Credential, len(entries))
	for i, e := range entries {
		cred := newCredential(e.Name, e.Secret, p.cfg.RPMLimit)
		if old, ok := p.previousLocked(e.Name); ok && old.secret == e.Secret {
			cred = old
			delete(p.retired, e.Name)
		}
		creds = append(creds, cred)
		byName[cred.name] = cred

		log.Debug().
			Str("key_name", cred.name).
			Str("key_id", cred.id).
			Int("index", i).
			Int("rpm_limit", p.cfg.RPMLimit).
			Msg("Initialized key in pool")
	}
	for name, old := range p.byName {
		if byName[name] != old && old.busy {
			p.retired[name] = old
		}
	}
	p.creds = creds
	p.byName = byName
	p.publishLocked()

	if len(creds) == 0 {
		log.Warn().
			Str("name", lo.CoalesceOrEmpty(p.cfg.Name, DefaultName)).
			Msg("No API keys found; every acquisition will fail")
		return
	}
	log.Info().
		Int("num_keys", len(creds)).
		Str("strategy", p.selector.Name()).
		Msg("Loaded key pool")
}

// previousLocked finds the credential a reload may reuse for name. Must hold p.mu.
func (p *Pool) previousLocked(name string) (*Credential, bool) {
	if c, ok := p.byName[name]; ok {
		return c, true
	}
	c, ok := p.retired[name]
	return c, ok
}

// SetRPMLimit changes the client-side requests-per-minute cap of every
// credential, including ones discovered later. Zero removes the limit.
func (p *Pool) SetRPMLimit(rpm int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rpm == p.cfg.RPMLimit {
		return
	}
	p.cfg.RPMLimit = rpm
	for _, c := range p.creds {
		switch {
		case rpm <= 0:
			c.limiter = nil
		case c.limiter == nil:
			c.limiter = ratelimit.NewTokenBucketLimiter(rpm)
		default:
			c.limiter.SetLimit(rpm)
		}
	}
	log.Info().Int("rpm_limit", rpm).Msg("Updated per-key rate limit")
}

// Len returns the number of credentials.
func (p *Pool) Len() int {
	return len(p.view.Load().Credentials)
}

// Names returns credential names in discovery order.
func (p *Pool) Names() []string {
	return lo.Map(p.view.Load().Credentials, func(s CredentialState, _ int) string {
		return s.Name
	})
}

// Credentials returns a copy of the credential slice in discovery order.
func (p *Pool) Credentials() []*Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Credential, len(p.creds))
	copy(out, p.creds)
	return out
}

// Get returns the credential named name.
func (p *Pool) Get(name string) (*Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.byName[name]
	return c, ok
}

// TryClaim marks one free, non-cooling credential busy and returns it.
//
// If nothing can be claimed it returns a nil credential and, when some free
// credential is only cooling down, the earliest time one becomes usable.
// ErrNoCredentials is returned for an empty pool.
func (p *Pool) TryClaim() (*Credential, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return nil, time.Time{}, ErrNoCredentials
	}

	now := p.now()
	var retryAt time.Time
	candidates := lo.Filter(p.creds, func(c *Credential, _ int) bool {
		if c.busy {
			return false
		}
		if c.coolingDown(now) {
			if retryAt.IsZero() || c.rateLimitedUntil.Before(retryAt) {
				retryAt = c.rateLimitedUntil
			}
			return false
		}
		return true
	})
	if len(candidates) == 0 {
		return nil, retryAt, nil
	}

	cred, err := p.selector.Select(candidates)
	if err != nil {
		return nil, retryAt, err
	}
	cred.busy = true
	cred.busySince = now
	p.publishLocked()

	log.Debug().
		Str("key_name", cred.name).
		Str("key_id", cred.id).
		Str("strategy", p.selector.Name()).
		Msg("Claimed key")
	return cred, time.Time{}, nil
}

// Claim marks a specific credential busy. It fails if the credential is
// unknown or already busy.
func (p *Pool) Claim(name string) (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCredential, name)
	}
	if cred.busy {
		return nil, fmt.Errorf("keypool: credential %s already busy", name)
	}
	cred.busy = true
	cred.busySince = p.now()
	p.publishLocked()
	return cred, nil
}

// Release clears the busy flag of cred. It reports whether the pool changed,
// so a second release, or a release of a credential a reload replaced or
// removed, returns false and leaves the current holder of that name alone.
func (p *Pool) Release(cred *Credential) bool {
	if cred == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.retired[cred.name] == cred {
		delete(p.retired, cred.name)
		cred.busy = false
		cred.busySince = time.Time{}
		return false
	}
	if p.byName[cred.name] != cred || !cred.busy {
		return false
	}
	cred.busy = false
	cred.busySince = time.Time{}
	p.publishLocked()
	return true
}

// MarkSuccess increments the request counter.
func (p *Pool) MarkSuccess(name string) {
	p.mutate(name, func(c *Credential) {
		c.requestCount++
	})
}

// MarkError increments the error counter.
func (p *Pool) MarkError(name string) {
	p.mutate(name, func(c *Credential) {
		c.errorCount++
	})
}

// MarkRateLimited starts a cooldown until the given time and counts the
// rate-limit response as an error.
func (p *Pool) MarkRateLimited(name string, until time.Time) {
	p.mutate(name, func(c *Credential) {
		c.errorCount++
		if until.After(c.rateLimitedUntil) {
			c.rateLimitedUntil = until
		}
		log.Warn().
			Str("key_name", c.name).
			Str("key_id", c.id).
			Time("cooldown_until", c.rateLimitedUntil).
			Msg("Key rate limited, cooling down")
	})
}

// CoolingDown reports whether name is inside its cooldown window.
func (p *Pool) CoolingDown(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cred, ok := p.byName[name]
	return ok && cred.coolingDown(p.now())
}

// Allow consults the credential's client-side RPM limiter. Credentials
// without a limiter always allow.
func (p *Pool) Allow(ctx context.Context, name string) bool {
	limiter := p.limiter(name)
	if limiter == nil {
		return true
	}
	return limiter.Allow(ctx)
}

// Usage reports the credential's client-side RPM budget. The second result
// is false for unknown or unlimited credentials.
func (p *Pool) Usage(name string) (ratelimit.Usage, bool) {
	limiter := p.limiter(name)
	if limiter == nil {
		return ratelimit.Usage{}, false
	}
	return limiter.GetUsage(), true
}

func (p *Pool) limiter(name string) ratelimit.RateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cred, ok := p.byName[name]; ok {
		return cred.limiter
	}
	return nil
}

// Snapshot returns the current immutable view of the pool.
func (p *Pool) Snapshot() Snapshot {
	return *p.view.Load()
}

// Stats summarizes the current view.
func (p *Pool) Stats() Stats {
	return p.Snapshot().Stats(p.now())
}

func (p *Pool) mutate(name string, fn func(*Credential)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.byName[name]
	if !ok {
		log.Debug().Str("key_name", name).Msg("Ignoring update for unknown key")
		return
	}
	fn(cred)
	p.publishLocked()
}

// publishLocked replaces the view. Must hold p.mu.
func (p *Pool) publishLocked() {
	states := make([]CredentialState, len(p.creds))
	for i, c := range p.creds {
		states[i] = c.state()
	}
	p.view.Store(&Snapshot{Credentials: states, TakenAt: p.now()})
}
