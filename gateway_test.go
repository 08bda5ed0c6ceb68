package main

import (
	"testing"
	"time"
)

func waitAck(t *testing.T, c *Client) AckMessage {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-c.send:
			if a, ok := m.(AckMessage); ok {
				return a
			}
		case <-deadline:
			t.Fatal("timed out waiting for ack")
		}
	}
}

func joinViaGateway(t *testing.T, reg *Registry, sessionID, name string) (*Client, AckMessage) {
	t.Helper()

	c := newTestClient()
	c.handleMessage(reg, ClientMessage{Type: "join_session", ID: 1, SessionID: sessionID, Name: name})
	a := waitAck(t, c)
	if a.Status != "ok" {
		t.Fatalf("join ack: %+v", a)
	}
	return c, a
}

func TestJoinValidatesFields(t *testing.T) {
	reg := newTestRegistry()
	c := newTestClient()

	c.handleMessage(reg, ClientMessage{Type: "join_session", ID: 7, SessionID: "room1"})

	a := waitAck(t, c)
	if a.Status != "error" || a.Error != "missing_field" || a.ID != 7 {
		t.Fatalf("unexpected ack: %+v", a)
	}
	if reg.get("room1") != nil {
		t.Fatal("invalid join created a session")
	}
}

func TestJoinAckCarriesIdentity(t *testing.T) {
	reg := newTestRegistry()

	c, a := joinViaGateway(t, reg, "room1", "alice")
	if a.PlayerID != c.id {
		t.Fatalf("player id = %q, want %q", a.PlayerID, c.id)
	}
	if a.SessionID != "room1" {
		t.Fatalf("session id = %q", a.SessionID)
	}
	if a.GameMasterID != "" {
		t.Fatal("game master assigned below threshold")
	}
	if c.session == nil || c.session.id != "room1" {
		t.Fatal("connection not associated with the session")
	}
}

func TestThirdJoinReportsGameMaster(t *testing.T) {
	reg := newTestRegistry()

	joinViaGateway(t, reg, "room1", "alice")
	joinViaGateway(t, reg, "room1", "bob")
	_, a := joinViaGateway(t, reg, "room1", "carol")

	if a.GameMasterID == "" {
		t.Fatal("third join ack missing game master")
	}
}

func TestSetQuestionUnknownSession(t *testing.T) {
	reg := newTestRegistry()
	c := newTestClient()

	c.handleMessage(reg, ClientMessage{Type: "set_question", ID: 2, SessionID: "nope", Question: "q", Answer: "a"})

	a := waitAck(t, c)
	if a.Status != "error" || a.Error != "session_not_found" {
		t.Fatalf("unexpected ack: %+v", a)
	}
}

func TestSetQuestionRejectsNonGameMaster(t *testing.T) {
	reg := newTestRegistry()

	clients := make([]*Client, 0, 3)
	var last AckMessage
	for _, name := range []string{"alice", "bob", "carol"} {
		c, a := joinViaGateway(t, reg, "room1", name)
		clients = append(clients, c)
		last = a
	}

	var intruder *Client
	for _, c := range clients {
		if c.id != last.GameMasterID {
			intruder = c
			break
		}
	}

	intruder.handleMessage(reg, ClientMessage{Type: "set_question", ID: 3, SessionID: "room1", Question: "q", Answer: "a"})

	a := waitAck(t, intruder)
	if a.Status != "error" || a.Error != "not_game_master" {
		t.Fatalf("unexpected ack: %+v", a)
	}
}

func TestFullRoundOverGateway(t *testing.T) {
	reg := newTestRegistry()

	clients := make([]*Client, 0, 3)
	var last AckMessage
	for _, name := range []string{"alice", "bob", "carol"} {
		c, a := joinViaGateway(t, reg, "room1", name)
		clients = append(clients, c)
		last = a
	}

	var master, guesser *Client
	for _, c := range clients {
		if c.id == last.GameMasterID {
			master = c
		} else {
			guesser = c
		}
	}

	master.handleMessage(reg, ClientMessage{Type: "set_question", ID: 2, SessionID: "room1", Question: "capital of France?", Answer: "Paris"})
	if a := waitAck(t, master); a.Status != "ok" {
		t.Fatalf("set_question ack: %+v", a)
	}

	master.handleMessage(reg, ClientMessage{Type: "start_game", ID: 3, SessionID: "room1", Time: 30})
	if a := waitAck(t, master); a.Status != "ok" {
		t.Fatalf("start_game ack: %+v", a)
	}

	guesser.handleMessage(reg, ClientMessage{Type: "submit_answer", ID: 4, SessionID: "room1", Guess: "Lyon"})
	a := waitAck(t, guesser)
	if a.Status != "ok" || a.Winner {
		t.Fatalf("wrong-guess ack: %+v", a)
	}
	if a.AttemptsLeft == nil || *a.AttemptsLeft != attemptsPerRound-1 {
		t.Fatalf("attempts left missing from ack: %+v", a)
	}

	guesser.handleMessage(reg, ClientMessage{Type: "submit_answer", ID: 5, SessionID: "room1", Guess: "PARIS"})
	a = waitAck(t, guesser)
	if a.Status != "ok" || !a.Winner {
		t.Fatalf("winning ack: %+v", a)
	}
	if a.AttemptsLeft != nil {
		t.Fatalf("winning ack should omit attempts: %+v", a)
	}
}

func TestStartGameWithoutQuestion(t *testing.T) {
	reg := newTestRegistry()

	clients := make([]*Client, 0, 3)
	var last AckMessage
	for _, name := range []string{"alice", "bob", "carol"} {
		c, a := joinViaGateway(t, reg, "room1", name)
		clients = append(clients, c)
		last = a
	}

	var master *Client
	for _, c := range clients {
		if c.id == last.GameMasterID {
			master = c
		}
	}

	master.handleMessage(reg, ClientMessage{Type: "start_game", ID: 2, SessionID: "room1"})

	a := waitAck(t, master)
	if a.Status != "error" || a.Error != "no_question" {
		t.Fatalf("unexpected ack: %+v", a)
	}
}

func TestLeaveUnknownSessionIsOk(t *testing.T) {
	reg := newTestRegistry()
	c := newTestClient()

	c.handleMessage(reg, ClientMessage{Type: "leave_session", ID: 9, SessionID: "room1"})

	a := waitAck(t, c)
	if a.Status != "ok" {
		t.Fatalf("unexpected ack: %+v", a)
	}
}

func TestLeaveDestroysEmptySession(t *testing.T) {
	reg := newTestRegistry()
	c, _ := joinViaGateway(t, reg, "room1", "alice")

	c.handleMessage(reg, ClientMessage{Type: "leave_session", ID: 2, SessionID: "room1"})

	if a := waitAck(t, c); a.Status != "ok" {
		t.Fatalf("leave ack: %+v", a)
	}
	if c.session != nil {
		t.Fatal("connection still associated after leave")
	}
	if reg.get("room1") != nil {
		t.Fatal("empty session not destroyed")
	}
}

func TestDisconnectIsImplicitLeave(t *testing.T) {
	reg := newTestRegistry()
	c, _ := joinViaGateway(t, reg, "room1", "alice")

	c.disconnect(reg)

	if reg.get("room1") != nil {
		t.Fatal("empty session not destroyed on disconnect")
	}
	if c.trySend("late") {
		t.Fatal("client still accepting messages after disconnect")
	}
}

func TestJoinSwitchesSessions(t *testing.T) {
	reg := newTestRegistry()
	c, _ := joinViaGateway(t, reg, "room1", "alice")

	c.handleMessage(reg, ClientMessage{Type: "join_session", ID: 2, SessionID: "room2", Name: "alice"})

	if a := waitAck(t, c); a.Status != "ok" || a.SessionID != "room2" {
		t.Fatalf("unexpected ack: %+v", a)
	}
	if reg.get("room1") != nil {
		t.Fatal("old session not destroyed after its only player moved")
	}
	if c.session == nil || c.session.id != "room2" {
		t.Fatal("connection not moved to the new session")
	}
}

func TestUnknownMessageTypeIgnored(t *testing.T) {
	reg := newTestRegistry()
	c := newTestClient()

	c.handleMessage(reg, ClientMessage{Type: "bogus", ID: 1})

	select {
	case m := <-c.send:
		t.Fatalf("unexpected reply to unknown message: %#v", m)
	default:
	}
}
