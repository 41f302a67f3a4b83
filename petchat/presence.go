package petchat

import "sync"

// PresenceTracker maintains the set of online participant identifiers.
// It is rebuilt wholesale from a roster snapshot on (re)connect and then
// updated by incremental deltas. A disconnect freezes the roster
// (stale-but-last-known) rather than clearing it.
type PresenceTracker struct {
	mu     sync.Mutex
	online map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{online: make(map[string]struct{})}
}

// SetRoster replaces local state with the server snapshot.
func (p *PresenceTracker) SetRoster(userIDs []string) {
	next := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		next[id] = struct{}{}
	}
	p.mu.Lock()
	p.online = next
	p.mu.Unlock()
}

// Apply folds in one online/offline delta. Repeated identical deltas are
// safe.
func (p *PresenceTracker) Apply(userID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if online {
		p.online[userID] = struct{}{}
	} else {
		delete(p.online, userID)
	}
}

// IsOnline reports whether the user currently holds an open connection,
// as last known.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[userID]
	return ok
}

// Online returns a snapshot of the online user ids.
func (p *PresenceTracker) Online() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	return out
}
