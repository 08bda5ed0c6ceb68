package main

// Messages coming from clients
type ClientMessage struct {
	Type      string `json:"type"`                 // "join_session", "set_question", "start_game", "submit_answer", "leave_session"
	ID        int64  `json:"id,omitempty"`         // client-chosen, echoed in the ack
	SessionID string `json:"session_id,omitempty"` // all types
	Name      string `json:"name,omitempty"`       // join_session
	Question  string `json:"question,omitempty"`   // set_question
	Answer    string `json:"answer,omitempty"`     // set_question
	Time      int    `json:"time,omitempty"`       // start_game, in seconds
	Guess     string `json:"guess,omitempty"`      // submit_answer
}

// AckMessage answers one inbound message, echoing its id.
type AckMessage struct {
	Type         string `json:"type"` // "ack"
	ID           int64  `json:"id"`
	Status       string `json:"status"` // "ok" or "error"
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	PlayerID     string `json:"player_id,omitempty"`
	GameMasterID string `json:"game_master_id,omitempty"`
	Winner       bool   `json:"winner,omitempty"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
}

type PlayerInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
}

type SessionInfo struct {
	ID      string       `json:"id"`
	Players []PlayerInfo `json:"players"`
}

// SessionUpdateMessage is broadcast on any membership, game-master, or state
// change.
type SessionUpdateMessage struct {
	Type         string      `json:"type"` // "session_update"
	Session      SessionInfo `json:"session"`
	GameMasterID string      `json:"game_master_id,omitempty"`
	State        string      `json:"state"`
}

// QuestionSetMessage goes to the setter only; the room first sees the prompt
// in game_started.
type QuestionSetMessage struct {
	Type string `json:"type"` // "question_set"
	Text string `json:"text"`
}

type GameStartedMessage struct {
	Type     string `json:"type"` // "game_started"
	Question string `json:"question"`
	TimeLeft int    `json:"time_left"`
}

type TimerTickMessage struct {
	Type     string `json:"type"` // "timer_tick"
	TimeLeft int    `json:"time_left"`
}

type PlayerAttemptMessage struct {
	Type         string `json:"type"` // "player_attempt"
	PlayerID     string `json:"player_id"`
	Name         string `json:"name"`
	AttemptsLeft int    `json:"attempts_left"`
	Guess        string `json:"guess"`
}

type WinnerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RoundEndMessage struct {
	Type   string      `json:"type"`   // "round_end"
	Winner *WinnerInfo `json:"winner"` // null when nobody won
	Answer string      `json:"answer"`
	Reason string      `json:"reason"` // "correct", "time_up", "game_master_left"
}
