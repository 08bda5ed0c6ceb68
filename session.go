package main

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	attemptsPerRound = 3
	minPlayers       = 3
	correctBonus     = 10
)

const (
	reasonCorrect        = "correct"
	reasonTimeUp         = "time_up"
	reasonGameMasterLeft = "game_master_left"
)

type sessionState string

const (
	stateWaiting    sessionState = "waiting"
	stateInProgress sessionState = "in_progress"
)

// Player holds the data we store server-side
type Player struct {
	ID           string
	Name         string
	Score        int
	AttemptsLeft int
}

type question struct {
	text   string
	answer string // trimmed, original case; compared case-insensitively
}

// Session is one isolated game room. Every mutation happens under mu,
// including the round timer's tick and expiry callbacks, so client events
// and timer events never interleave.
type Session struct {
	id string

	mu           sync.Mutex
	clients      map[*Client]bool
	players      []Player // insertion order = join order
	gameMasterID string
	state        sessionState
	question     *question
	timeLeft     int

	timer *roundTimer // non-nil only while a round is running
	round int         // increments at every round start; stale timer callbacks carry an old value

	defaultRound int // seconds
	clock        clockwork.Clock

	createdAt  time.Time
	lastActive time.Time
}

func newSession(id string, defaultRound int, clock clockwork.Clock) *Session {
	now := clock.Now()
	return &Session{
		id:           id,
		clients:      make(map[*Client]bool),
		state:        stateWaiting,
		defaultRound: defaultRound,
		clock:        clock,
		createdAt:    now,
		lastActive:   now,
	}
}

// join adds the connection as a player and broadcasts the new roster. Once
// three players are present and no game master exists, one is picked at
// random.
func (s *Session) join(c *Client, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.clock.Now()

	if s.state == stateInProgress {
		return "", errGameInProgress
	}

	s.clients[c] = true
	s.players = append(s.players, Player{
		ID:           c.id,
		Name:         name,
		AttemptsLeft: attemptsPerRound,
	})

	if s.gameMasterID == "" && len(s.players) >= minPlayers {
		s.gameMasterID = s.players[rand.Intn(len(s.players))].ID
		log.Debug().Str("session", s.id).Str("game_master", s.gameMasterID).Msg("game master assigned")
	}

	log.Debug().Str("session", s.id).Str("player", name).Int("players", len(s.players)).Msg("player joined")

	s.broadcastSessionLocked(true)

	return s.gameMasterID, nil
}

func (s *Session) setQuestion(c *Client, text, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.clock.Now()

	if c.id != s.gameMasterID {
		return errNotGameMaster
	}
	if s.state == stateInProgress {
		return errRoundActive
	}

	s.question = &question{
		text:   text,
		answer: strings.TrimSpace(answer),
	}

	// Only the setter learns that a question is ready; the room first sees
	// the prompt in game_started.
	s.sendLocked(c, QuestionSetMessage{Type: "question_set", Text: text})

	return nil
}

func (s *Session) startRound(callerID string, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.clock.Now()

	if callerID != s.gameMasterID {
		return errNotGameMaster
	}
	if len(s.players) < minPlayers {
		return errTooFewPlayers
	}
	if s.question == nil {
		return errNoQuestion
	}
	if s.state == stateInProgress {
		return errRoundActive
	}

	if seconds <= 0 {
		seconds = s.defaultRound
	}

	s.state = stateInProgress
	s.timeLeft = seconds
	for i := range s.players {
		s.players[i].AttemptsLeft = attemptsPerRound
	}

	s.broadcastLocked(GameStartedMessage{
		Type:     "game_started",
		Question: s.question.text,
		TimeLeft: seconds,
	})

	s.startTimerLocked(seconds)

	log.Info().Str("session", s.id).Int("seconds", seconds).Msg("round started")

	return nil
}

func (s *Session) submitGuess(c *Client, guess string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.clock.Now()

	if s.state != stateInProgress {
		return false, 0, errNoActiveRound
	}

	var player *Player
	for i := range s.players {
		if s.players[i].ID == c.id {
			player = &s.players[i]
			break
		}
	}
	if player == nil {
		return false, 0, errNotInSession
	}
	if player.AttemptsLeft <= 0 {
		return false, 0, errNoAttemptsLeft
	}

	player.AttemptsLeft--

	// Every attempt is public, including wrong ones.
	s.broadcastLocked(PlayerAttemptMessage{
		Type:         "player_attempt",
		PlayerID:     player.ID,
		Name:         player.Name,
		AttemptsLeft: player.AttemptsLeft,
		Guess:        guess,
	})

	if s.question == nil || !strings.EqualFold(strings.TrimSpace(guess), s.question.answer) {
		// Wrong guesses never end the round, even on a player's last attempt.
		return false, player.AttemptsLeft, nil
	}

	player.Score += correctBonus

	log.Info().Str("session", s.id).Str("winner", player.Name).Msg("round won")

	s.endRoundLocked(&WinnerInfo{ID: player.ID, Name: player.Name}, reasonCorrect)

	return true, player.AttemptsLeft, nil
}

// leave removes the connection's player. The caller removes the session from
// the registry when true is returned.
func (s *Session) leave(c *Client) (empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.clock.Now()

	delete(s.clients, c)

	found := false
	dst := s.players[:0]
	for _, p := range s.players {
		if p.ID == c.id {
			found = true
			continue
		}
		dst = append(dst, p)
	}
	s.players = dst

	if len(s.players) == 0 {
		s.stopTimerLocked()
		return true
	}
	if !found {
		return false
	}

	log.Debug().Str("session", s.id).Str("player", c.id).Int("players", len(s.players)).Msg("player left")

	if s.gameMasterID == c.id {
		if s.state == stateInProgress {
			// The round cannot continue without its game master.
			s.endRoundLocked(nil, reasonGameMasterLeft)
			return false
		}
		s.gameMasterID = pickReplacement(s.players, c.id)
	}

	s.broadcastSessionLocked(false)

	return false
}

// endRoundLocked terminates the active round. The timer is cancelled before
// any further mutation, so no tick or expiry can land on a stale round.
func (s *Session) endRoundLocked(winner *WinnerInfo, reason string) {
	s.stopTimerLocked()
	s.state = stateWaiting

	var answer string
	if s.question != nil {
		answer = s.question.answer
	}
	s.question = nil

	s.broadcastLocked(RoundEndMessage{
		Type:   "round_end",
		Winner: winner,
		Answer: answer,
		Reason: reason,
	})

	s.gameMasterID = pickReplacement(s.players, s.gameMasterID)

	s.broadcastSessionLocked(false)
}

func (s *Session) startTimerLocked(seconds int) {
	s.round++
	s.timer = newRoundTimer(s, s.round, seconds)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.stop()
		s.timer = nil
	}
}

// handleTick runs once per second while a round is active. A tick at exactly
// zero is still broadcast.
func (s *Session) handleTick(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if round != s.round || s.state != stateInProgress {
		return
	}

	s.timeLeft--
	if s.timeLeft >= 0 {
		s.broadcastLocked(TimerTickMessage{Type: "timer_tick", TimeLeft: s.timeLeft})
	}
}

// handleExpiry fires once when the round runs out of time.
func (s *Session) handleExpiry(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if round != s.round || s.state != stateInProgress {
		return
	}

	log.Info().Str("session", s.id).Msg("round timed out")

	s.endRoundLocked(nil, reasonTimeUp)
}

func (s *Session) snapshotLocked(withAttempts bool) SessionUpdateMessage {
	players := make([]PlayerInfo, 0, len(s.players))
	for _, p := range s.players {
		info := PlayerInfo{ID: p.ID, Name: p.Name, Score: p.Score}
		if withAttempts {
			attempts := p.AttemptsLeft
			info.AttemptsLeft = &attempts
		}
		players = append(players, info)
	}

	return SessionUpdateMessage{
		Type:         "session_update",
		Session:      SessionInfo{ID: s.id, Players: players},
		GameMasterID: s.gameMasterID,
		State:        string(s.state),
	}
}

func (s *Session) broadcastSessionLocked(withAttempts bool) {
	s.broadcastLocked(s.snapshotLocked(withAttempts))
}

func (s *Session) broadcastLocked(msg any) {
	for client := range s.clients {
		s.sendLocked(client, msg)
	}
}

// sendLocked never blocks; a client too slow to drain its buffer is dropped
// and its player removed once its read loop notices the closed connection.
func (s *Session) sendLocked(c *Client, msg any) {
	if !c.trySend(msg) {
		delete(s.clients, c)
		c.close()
	}
}

func (s *Session) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.players) == 0
}

func (s *Session) idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActive.Before(cutoff)
}

// closeAll disconnects all clients of this session (used by the reaper).
func (s *Session) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()

	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
}

// pickReplacement chooses a new game master at random, preferring any player
// other than excludeID. With no other candidates it falls back to whoever
// remains.
func pickReplacement(players []Player, excludeID string) string {
	candidates := make([]string, 0, len(players))
	for _, p := range players {
		if p.ID != excludeID {
			candidates = append(candidates, p.ID)
		}
	}

	if len(candidates) == 0 {
		if len(players) == 0 {
			return ""
		}
		return players[rand.Intn(len(players))].ID
	}

	return candidates[rand.Intn(len(candidates))]
}
