/*
Copyright © 2026 Ohye985
*/

package main

import "errors"

// Gameplay failures returned by session operations. The gateway answers each
// with an error ack carrying a stable code plus the human-readable text below.
var (
	errMissingField   = errors.New("sessionId and name required")
	errGameInProgress = errors.New("cannot join while game in progress")
	errNotGameMaster  = errors.New("only the game master can do that")
	errRoundActive    = errors.New("game already in progress")
	errSessionGone    = errors.New("session not found")
	errTooFewPlayers  = errors.New("need at least 3 players to start")
	errNoQuestion     = errors.New("no question set")
	errNoActiveRound  = errors.New("no game in progress")
	errNotInSession   = errors.New("player not in session")
	errNoAttemptsLeft = errors.New("no attempts left")
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, errMissingField):
		return "missing_field"
	case errors.Is(err, errGameInProgress):
		return "game_in_progress"
	case errors.Is(err, errNotGameMaster):
		return "not_game_master"
	case errors.Is(err, errRoundActive):
		return "round_already_active"
	case errors.Is(err, errSessionGone):
		return "session_not_found"
	case errors.Is(err, errTooFewPlayers):
		return "insufficient_players"
	case errors.Is(err, errNoQuestion):
		return "no_question"
	case errors.Is(err, errNoActiveRound):
		return "no_active_round"
	case errors.Is(err, errNotInSession):
		return "player_not_in_session"
	case errors.Is(err, errNoAttemptsLeft):
		return "no_attempts_left"
	default:
		return "internal"
	}
}
