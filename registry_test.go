package main

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestRegistry() *Registry {
	return newRegistry(60, 0, clockwork.NewFakeClock())
}

func TestGetOrCreate(t *testing.T) {
	reg := newTestRegistry()

	s := reg.getOrCreate("room1")
	if s == nil {
		t.Fatal("no session created")
	}

	s.mu.Lock()
	if s.state != stateWaiting || s.gameMasterID != "" || len(s.players) != 0 {
		t.Fatalf("fresh session not pristine: %+v", s)
	}
	s.mu.Unlock()

	if reg.getOrCreate("room1") != s {
		t.Fatal("second lookup created a new session")
	}
	if reg.get("room2") != nil {
		t.Fatal("get invented a session")
	}
}

func TestRemoveIfEmpty(t *testing.T) {
	reg := newTestRegistry()
	s := reg.getOrCreate("room1")

	c := newTestClient()
	if _, err := s.join(c, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	reg.removeIfEmpty("room1")
	if reg.get("room1") != s {
		t.Fatal("populated session was removed")
	}

	if !s.leave(c) {
		t.Fatal("last leave did not report empty")
	}
	reg.removeIfEmpty("room1")
	if reg.get("room1") != nil {
		t.Fatal("empty session was not removed")
	}
}

func TestRejoinAfterDestroyGetsFreshSession(t *testing.T) {
	reg := newTestRegistry()
	s := reg.getOrCreate("room1")
	clients := joinPlayers(t, s, 3)

	for _, c := range clients {
		if s.leave(c) {
			reg.removeIfEmpty(s.id)
		}
	}
	if reg.get("room1") != nil {
		t.Fatal("session survived its last player leaving")
	}

	fresh := reg.getOrCreate("room1")
	if fresh == s {
		t.Fatal("stale session resurrected")
	}

	fresh.mu.Lock()
	defer fresh.mu.Unlock()
	if fresh.state != stateWaiting || fresh.gameMasterID != "" || len(fresh.players) != 0 {
		t.Fatalf("recreated session not pristine: %+v", fresh)
	}
}

func TestNewSessionID(t *testing.T) {
	reg := newTestRegistry()

	id := reg.newSessionID()
	if len(id) != 8 {
		t.Fatalf("session id length = %d, want 8", len(id))
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			t.Fatalf("unexpected character %q in session id %q", r, id)
		}
	}
}

func TestReaperRemovesIdleSessions(t *testing.T) {
	fc := clockwork.NewFakeClock()
	reg := newRegistry(60, time.Hour, fc)

	// Wait for the reaper's ticker before creating the session.
	fc.BlockUntil(1)

	reg.getOrCreate("room1")

	deadline := time.Now().Add(2 * time.Second)
	for reg.get("room1") != nil {
		if time.Now().After(deadline) {
			t.Fatal("idle session was not reaped")
		}
		fc.Advance(30 * time.Minute)
		time.Sleep(5 * time.Millisecond)
	}
}
