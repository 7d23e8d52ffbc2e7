package tracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Entry is one user's in-flight call. BoundAt is when Credential was
// leased and is zero until Bind.
type Entry struct {
	CreatedAt  time.Time
	BoundAt    time.Time
	Handle     Handle
	UserID     string
	Credential string
}

// startedAt is implemented by handles that know when their call began.
type startedAt interface {
	CreatedAt() time.Time
}

func createdAt(h Handle) time.Time {
	if s, ok := h.(startedAt); ok {
		return s.CreatedAt()
	}
	return time.Now()
}

// Tracker maps user ids to their in-flight call. Safe for concurrent use.
type Tracker struct {
	entries map[string]*Entry
	mu      sync.Mutex
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[string]*Entry)}
}

// Register installs handle as the user's in-flight call. An older call that
// has not finished is cancelled first.
func (t *Tracker) Register(userID string, handle Handle, credential string) {
	t.mu.Lock()
	prev, ok := t.entries[userID]
	t.entries[userID] = &Entry{
		UserID:     userID,
		Handle:     handle,
		Credential: credential,
		CreatedAt:  createdAt(handle),
	}
	t.mu.Unlock()

	if ok && prev.Handle != handle {
		cancelHandle(userID, prev.Handle)
	}
}

// Bind records the credential serving the user's call and when it was
// leased, if handle is still the current one.
func (t *Tracker) Bind(userID string, handle Handle, credential string, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[userID]; ok && e.Handle == handle {
		e.Credential = credential
		e.BoundAt = since
	}
}

// Unregister removes the user's entry unconditionally.
func (t *Tracker) Unregister(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, userID)
}

// Finish removes the user's entry only if handle still owns it, so a
// superseded call never removes its successor.
func (t *Tracker) Finish(userID string, handle Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[userID]; ok && e.Handle == handle {
		delete(t.entries, userID)
		return true
	}
	return false
}

// IsActive reports whether the user has a call that is not done.
func (t *Tracker) IsActive(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	return ok && !e.Handle.Done()
}

// Cancel cancels the user's in-flight call. It reports whether a
// cancellation was issued; the entry stays until unregistered.
func (t *Tracker) Cancel(userID string) bool {
	t.mu.Lock()
	e, ok := t.entries[userID]
	t.mu.Unlock()
	if !ok || e.Handle.Done() {
		return false
	}
	return cancelHandle(userID, e.Handle)
}

// Get returns a copy of the user's entry.
func (t *Tracker) Get(userID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ActiveCount returns the number of users with a call that is not done.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.CountBy(lo.Values(t.entries), func(e *Entry) bool {
		return !e.Handle.Done()
	})
}

func cancelHandle(userID string, h Handle) bool {
	if h.Done() {
		return false
	}
	if err := h.Cancel(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to cancel in-flight request")
		return false
	}
	log.Info().Str("user_id", userID).Msg("Cancelled in-flight request")
	return true
}
