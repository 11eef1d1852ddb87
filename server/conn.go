package server

import (
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"splitsteal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	// sendQueueSize bounds the per-connection outbound queue. A slow
	// reader drops frames rather than stalling the emitting component.
	sendQueueSize = 64
)

// Conn is one live connection: its role, the address bound after
// authentication, and an ordered outbound queue drained by a single
// writer goroutine, so events reach a given peer in emission order.
type Conn struct {
	ID   string
	Role wire.Role

	mu          sync.Mutex
	addr        string
	challengeID string
	closed      bool

	sock *websocket.Conn
	send chan wire.Envelope
	log  slog.Logger
}

func newConn(sock *websocket.Conn, role wire.Role, log slog.Logger) *Conn {
	c := &Conn{
		ID:   uuid.NewString(),
		Role: role,
		sock: sock,
		send: make(chan wire.Envelope, sendQueueSize),
		log:  log,
	}
	if sock != nil {
		go c.writePump()
	}
	return c
}

// Address returns the bound wallet address, empty until authenticated.
func (c *Conn) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

func (c *Conn) bindAddress(addr string) {
	c.mu.Lock()
	c.addr = addr
	c.mu.Unlock()
}

// ChallengeID returns the pending challenge id, empty when none.
func (c *Conn) ChallengeID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challengeID
}

func (c *Conn) setChallengeID(id string) {
	c.mu.Lock()
	c.challengeID = id
	c.mu.Unlock()
}

// Enqueue queues an envelope for delivery. Sending to a closed connection
// is a no-op; a full queue drops the frame rather than block the caller.
func (c *Conn) Enqueue(env wire.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- env:
	default:
		c.log.Warnf("conn %s: send queue full, dropping %s", c.ID, env.Type)
	}
}

// Close marks the connection closed and tears down the socket. Safe to
// call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.sock != nil {
		c.sock.Close()
	}
}

// writePump drains the send queue onto the socket and keeps the peer
// alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case env, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteJSON(env); err != nil {
				c.log.Debugf("conn %s: write failed: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
