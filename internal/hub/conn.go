package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// peerState is the per-connection membership state machine.
type peerState int

const (
	stateNotJoined peerState = iota
	stateJoining
	stateJoined
	stateLeaving
	stateDisconnected
)

// conn wraps one upgraded WebSocket connection. Outbound sends are FIFO,
// enforced by the single writePump goroutine draining send.
type conn struct {
	handle string
	ws     *websocket.Conn
	logger *slog.Logger

	// send is the FIFO outbound queue; writePump is its only consumer.
	send chan []byte

	mu        sync.Mutex
	userID    string
	sessionID string
	state     peerState
}

func newConn(handle string, ws *websocket.Conn, logger *slog.Logger) *conn {
	return &conn{
		handle: handle,
		ws:     ws,
		logger: logger.With(slog.String("connection_handle", handle)),
		send:   make(chan []byte, sendBufferSize),
		state:  stateNotJoined,
	}
}

// enqueue appends a frame to the FIFO send queue. Drops the frame with a
// warning if the queue is full rather than blocking the caller — a slow
// client must never stall fan-out to the rest of a session.
func (c *conn) enqueue(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.logger.Warn("failed to marshal outbound frame", slog.String("error", err.Error()))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("outbound queue full, dropping frame")
	}
}

func (c *conn) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *conn) getUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *conn) setSession(sessionID string, state peerState) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.state = state
	c.mu.Unlock()
}

func (c *conn) setState(state peerState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *conn) snapshot() (sessionID string, userID string, state peerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.userID, c.state
}

// readPump reads frames off the socket and hands them to dispatch. Exits
// (and triggers teardown) on any read error or a close frame.
func (c *conn) readPump(dispatch func(*conn, Frame)) {
	defer close(c.send)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed inbound frame", slog.String("error", err.Error()))
			continue
		}

		dispatch(c, f)
	}
}

// writePump drains the FIFO send queue to the socket and issues periodic
// pings. Exits when send is closed (by readPump on teardown) or on write error.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("websocket write error", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
