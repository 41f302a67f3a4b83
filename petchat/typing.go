package petchat

import (
	"sync"
	"time"
)

// TypingCoordinator tracks per-peer typing state with auto-expiry. A
// typing-start arms (or re-arms) a quiet-window timer; an explicit stop or
// the timer expiry flips the peer back to idle, whichever comes first, and
// both cancel the pending timer so a late expiry never fires against a
// peer that already stopped.
type TypingCoordinator struct {
	quiet time.Duration

	mu     sync.Mutex
	active map[string]bool
	timers map[string]*time.Timer
	// gens invalidates expiries already in flight: Stop() on a timer
	// that has fired but not yet run is a no-op, so every Start/Stop
	// bumps the peer's generation and a stale expire does nothing.
	gens     map[string]uint64
	onChange func(peerID string, typing bool)
	closed   bool
}

func NewTypingCoordinator(quiet time.Duration) *TypingCoordinator {
	return &TypingCoordinator{
		quiet:  quiet,
		active: make(map[string]bool),
		timers: make(map[string]*time.Timer),
		gens:   make(map[string]uint64),
	}
}

// OnChange registers the single observer notified on idle<->typing
// transitions. Refreshing starts do not re-notify.
func (t *TypingCoordinator) OnChange(fn func(peerID string, typing bool)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start marks the peer as typing and resets its expiry timer.
func (t *TypingCoordinator) Start(peerID string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	wasTyping := t.active[peerID]
	t.active[peerID] = true
	if timer, ok := t.timers[peerID]; ok {
		timer.Stop()
	}
	t.gens[peerID]++
	gen := t.gens[peerID]
	t.timers[peerID] = time.AfterFunc(t.quiet, func() { t.expire(peerID, gen) })
	fn := t.onChange
	t.mu.Unlock()

	if !wasTyping && fn != nil {
		fn(peerID, true)
	}
}

// Stop marks the peer idle and cancels the pending expiry timer.
func (t *TypingCoordinator) Stop(peerID string) {
	t.mu.Lock()
	wasTyping := t.active[peerID]
	delete(t.active, peerID)
	if timer, ok := t.timers[peerID]; ok {
		timer.Stop()
		delete(t.timers, peerID)
	}
	t.gens[peerID]++
	fn := t.onChange
	t.mu.Unlock()

	if wasTyping && fn != nil {
		fn(peerID, false)
	}
}

// IsTyping reports the peer's current state.
func (t *TypingCoordinator) IsTyping(peerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[peerID]
}

// Close cancels every pending timer. The coordinator accepts no further
// starts afterwards.
func (t *TypingCoordinator) Close() {
	t.mu.Lock()
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.active = make(map[string]bool)
	t.mu.Unlock()
}

func (t *TypingCoordinator) expire(peerID string, gen uint64) {
	t.mu.Lock()
	// A Stop or refreshing Start that raced the timer bumped the
	// generation; this expiry belongs to a superseded window.
	if t.closed || t.gens[peerID] != gen || !t.active[peerID] {
		t.mu.Unlock()
		return
	}
	delete(t.active, peerID)
	delete(t.timers, peerID)
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(peerID, false)
	}
}
