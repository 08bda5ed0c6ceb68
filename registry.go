package main

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry owns every live session, keyed by session id. Sessions are created
// on first join and removed as soon as their last player leaves.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	defaultRound int // seconds
	idleTimeout  time.Duration
	clock        clockwork.Clock
}

func newRegistry(defaultRound int, idleTimeout time.Duration, clock clockwork.Clock) *Registry {
	r := &Registry{
		sessions:     make(map[string]*Session),
		defaultRound: defaultRound,
		idleTimeout:  idleTimeout,
		clock:        clock,
	}
	if idleTimeout > 0 {
		go r.reaperLoop()
	}
	return r
}

func (r *Registry) get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sessions[id]
}

func (r *Registry) getOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}

	s := newSession(id, r.defaultRound, r.clock)
	r.sessions[id] = s

	log.Info().Str("session", id).Msg("session created")

	return s
}

// removeIfEmpty drops the session once its last player has left. The re-check
// under both locks covers a join racing the final leave.
func (r *Registry) removeIfEmpty(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.empty() {
		return
	}

	delete(r.sessions, id)

	log.Info().Str("session", id).Msg("session destroyed")
}

// newSessionID generates a crypto-random session id and ensures it doesn't
// collide with a live session.
func (r *Registry) newSessionID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if r.get(id) == nil {
			return id
		}
	}
}

// reaperLoop periodically removes sessions that have been idle longer than
// idleTimeout, abandoned non-empty rooms included.
func (r *Registry) reaperLoop() {
	ticker := r.clock.NewTicker(r.idleTimeout / 2)
	defer ticker.Stop()

	for range ticker.Chan() {
		cutoff := r.clock.Now().Add(-r.idleTimeout)

		r.mu.Lock()
		for id, s := range r.sessions {
			if s.idle(cutoff) {
				delete(r.sessions, id)
				log.Info().Str("session", id).Msg("idle session reaped")
				go s.closeAll()
			}
		}
		r.mu.Unlock()
	}
}
