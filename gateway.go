package main

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection. Its id doubles as the player id in
// whichever session it joins.
type Client struct {
	conn *websocket.Conn
	id   string

	mu     sync.Mutex
	send   chan any
	closed bool

	session *Session // only touched from the read loop
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// trySend queues a message for the write loop without ever blocking. False
// means the client is gone or too slow to keep.
func (c *Client) trySend(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) ack(a AckMessage) {
	a.Type = "ack"
	if a.Status == "" {
		a.Status = "ok"
	}
	c.trySend(a)
}

func (c *Client) ackError(id int64, err error) {
	c.trySend(AckMessage{
		Type:    "ack",
		ID:      id,
		Status:  "error",
		Error:   errorCode(err),
		Message: err.Error(),
	})
}

// serveWS upgrades the connection and runs its read loop. Each connection
// gets a fresh opaque id; there is no identity beyond it.
func serveWS(reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			conn: conn,
			id:   uuid.NewString(),
			send: make(chan any, 16),
		}

		log.Debug().Str("conn", client.id).Str("remote", realIP(r)).Msg("websocket connected")

		go client.writePump()
		client.readPump(reg)
	}
}

func (c *Client) readPump(reg *Registry) {
	defer func() {
		c.disconnect(reg)
		log.Debug().Str("conn", c.id).Msg("websocket disconnected")
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.handleMessage(reg, msg)
	}
}

func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// disconnect treats a dropped connection as an implicit leave, not an error.
func (c *Client) disconnect(reg *Registry) {
	if s := c.session; s != nil {
		c.session = nil
		if s.leave(c) {
			reg.removeIfEmpty(s.id)
		}
	}
	c.close()
}

// handleMessage validates an inbound event and dispatches it. Failures are
// answered with an error ack; nothing a client sends may crash the process.
func (c *Client) handleMessage(reg *Registry, msg ClientMessage) {
	switch msg.Type {
	case "join_session":
		c.handleJoin(reg, msg)
	case "set_question":
		c.handleSetQuestion(reg, msg)
	case "start_game":
		c.handleStartGame(reg, msg)
	case "submit_answer":
		c.handleSubmitAnswer(reg, msg)
	case "leave_session":
		c.handleLeave(reg, msg)
	default:
		// ignore unknown types
	}
}

func (c *Client) handleJoin(reg *Registry, msg ClientMessage) {
	if msg.SessionID == "" || msg.Name == "" {
		c.ackError(msg.ID, errMissingField)
		return
	}

	// A connection belongs to at most one session; joining another implies
	// leaving the current one.
	if prev := c.session; prev != nil {
		c.session = nil
		if prev.leave(c) {
			reg.removeIfEmpty(prev.id)
		}
	}

	session := reg.getOrCreate(msg.SessionID)

	gameMasterID, err := session.join(c, msg.Name)
	if err != nil {
		c.ackError(msg.ID, err)
		return
	}

	c.session = session

	c.ack(AckMessage{
		ID:           msg.ID,
		SessionID:    session.id,
		PlayerID:     c.id,
		GameMasterID: gameMasterID,
	})
}

func (c *Client) handleSetQuestion(reg *Registry, msg ClientMessage) {
	if msg.SessionID == "" || msg.Question == "" || msg.Answer == "" {
		c.ackError(msg.ID, errMissingField)
		return
	}

	session := reg.get(msg.SessionID)
	if session == nil {
		c.ackError(msg.ID, errSessionGone)
		return
	}

	if err := session.setQuestion(c, msg.Question, msg.Answer); err != nil {
		c.ackError(msg.ID, err)
		return
	}

	c.ack(AckMessage{ID: msg.ID})
}

func (c *Client) handleStartGame(reg *Registry, msg ClientMessage) {
	if msg.SessionID == "" {
		c.ackError(msg.ID, errMissingField)
		return
	}

	session := reg.get(msg.SessionID)
	if session == nil {
		c.ackError(msg.ID, errSessionGone)
		return
	}

	if err := session.startRound(c.id, msg.Time); err != nil {
		c.ackError(msg.ID, err)
		return
	}

	c.ack(AckMessage{ID: msg.ID})
}

func (c *Client) handleSubmitAnswer(reg *Registry, msg ClientMessage) {
	if msg.SessionID == "" {
		c.ackError(msg.ID, errMissingField)
		return
	}

	session := reg.get(msg.SessionID)
	if session == nil {
		c.ackError(msg.ID, errSessionGone)
		return
	}

	winner, attemptsLeft, err := session.submitGuess(c, msg.Guess)
	if err != nil {
		c.ackError(msg.ID, err)
		return
	}

	a := AckMessage{ID: msg.ID, Winner: winner}
	if !winner {
		a.AttemptsLeft = &attemptsLeft
	}
	c.ack(a)
}

func (c *Client) handleLeave(reg *Registry, msg ClientMessage) {
	if msg.SessionID == "" {
		c.ackError(msg.ID, errMissingField)
		return
	}

	// Leaving a session you are not in is not an error.
	if s := c.session; s != nil && s.id == msg.SessionID {
		c.session = nil
		if s.leave(c) {
			reg.removeIfEmpty(s.id)
		}
	}

	c.ack(AckMessage{ID: msg.ID})
}

// redirectNewSession handles GET /path by generating a new random session ID
// (with server-side collision detection) and redirecting to /path/:sessionid.
func redirectNewSession(cfg *Config, path string, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sessionID := reg.newSessionID()
		log.Debug().Str("session", sessionID).Msg("new session redirect")
		http.Redirect(w, r, cfg.prefix+path+"/"+sessionID, http.StatusTemporaryRedirect)
	}
}

// qrHandler generates a PNG QR code for the current session URL so a room can
// be shared by pointing a phone at the screen.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("sessionid")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:sessionid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerGuessingGame sets up routes so that:
//   - $path               → redirects to a new random session (8-char ID)
//   - $path/:sessionid    → HTML client
//   - $path/:sessionid/qr → PNG QR code for that session URL
//   - /ws                 → shared WebSocket endpoint; events carry the
//     session id, and sessions are created lazily on first join
func registerGuessingGame(cfg *Config, path string, mux *httprouter.Router) {
	reg := newRegistry(cfg.roundSeconds(), cfg.sessionTimeout, clockwork.NewRealClock())

	mux.GET(cfg.prefix+path, redirectNewSession(cfg, path, reg))

	// Per-session client view (HTML)
	mux.GET(cfg.prefix+path+"/:sessionid", getIndexHandler(cfg))

	// Shared assets (no session id in route)
	mux.GET(cfg.prefix+"/assets/guess/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/guess/app.js", getJsHandler(cfg))

	// Per-session QR code
	mux.GET(cfg.prefix+path+"/:sessionid/qr", qrHandler)

	mux.GET(cfg.prefix+"/ws", serveWS(reg))
}
