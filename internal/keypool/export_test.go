package keypool

import "time"

// SetClock replaces the pool clock (for testing).
func (p *Pool) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// SelectorName returns the active selector name (for testing).
func (p *Pool) SelectorName() string {
	return p.selector.Name()
}

// NewTestCredential builds a credential outside a pool (for testing).
func NewTestCredential(name, secret string, requests, errs int64) *Credential {
	c := newCredential(name, secret, 0)
	c.requestCount = requests
	c.errorCount = errs
	return c
}

// HasLimiter reports whether a client-side limiter is attached (for testing).
func (c *Credential) HasLimiter() bool {
	return c.limiter != nil
}
