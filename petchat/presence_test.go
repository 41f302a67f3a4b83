package petchat

import "testing"

func TestPresenceSnapshotReplacesState(t *testing.T) {
	p := NewPresenceTracker()
	p.SetRoster([]string{"u1", "u2"})
	p.SetRoster([]string{"u3"})

	if p.IsOnline("u1") || p.IsOnline("u2") {
		t.Fatal("snapshot must replace, not merge")
	}
	if !p.IsOnline("u3") {
		t.Fatal("expected u3 online")
	}
}

func TestPresenceDeltasAreIdempotent(t *testing.T) {
	p := NewPresenceTracker()
	p.Apply("u1", true)
	p.Apply("u1", true)
	if !p.IsOnline("u1") {
		t.Fatal("expected u1 online")
	}
	if got := len(p.Online()); got != 1 {
		t.Fatalf("expected 1 online user, got %d", got)
	}

	p.Apply("u1", false)
	p.Apply("u1", false)
	if p.IsOnline("u1") {
		t.Fatal("expected u1 offline")
	}
}

// A disconnect freezes the roster; the stale last-known state must not
// read as "everyone offline".
func TestPresenceFrozenOnDisconnect(t *testing.T) {
	p := NewPresenceTracker()
	p.SetRoster([]string{"u1", "u2"})

	// Nothing calls into the tracker while the transport is down.
	if !p.IsOnline("u1") || !p.IsOnline("u2") {
		t.Fatal("last-known roster must survive a disconnect")
	}

	// The next snapshot on reconnect rebuilds it.
	p.SetRoster([]string{"u2"})
	if p.IsOnline("u1") {
		t.Fatal("reconnect snapshot must replace the stale roster")
	}
}
