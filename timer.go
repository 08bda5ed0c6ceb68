package main

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// roundTimer drives one round: a per-second tick plus a one-shot expiry that
// fires after the full duration regardless of tick drift. Stopping it means
// neither fires again; callbacks already waiting on the session lock are
// rejected by the session's round counter.
type roundTimer struct {
	cancel chan struct{}
}

func newRoundTimer(s *Session, round, seconds int) *roundTimer {
	t := &roundTimer{cancel: make(chan struct{})}
	go t.run(s, round, seconds)
	return t
}

func (t *roundTimer) stop() {
	close(t.cancel)
}

func (t *roundTimer) run(s *Session, round, seconds int) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	expiry := s.clock.NewTimer(time.Duration(seconds) * time.Second)
	defer stopAndDrainTimer(expiry)

	for {
		select {
		case <-t.cancel:
			return
		case <-ticker.Chan():
			s.handleTick(round)
		case <-expiry.Chan():
			// The final tick and the expiry land on the same instant; let
			// the tick through first so clients see the countdown reach zero.
			select {
			case <-ticker.Chan():
				s.handleTick(round)
			default:
			}
			s.handleExpiry(round)
			return
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel, per the
// time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
