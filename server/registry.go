package server

import (
	"sync"

	"github.com/decred/slog"

	"splitsteal/wire"
)

// Stats is the aggregate connection picture served at /stats.
type Stats struct {
	Agents     int `json:"agents"`
	Spectators int `json:"spectators"`
	Bettors    int `json:"bettors"`
	Identified int `json:"identified"`
}

// Broadcaster is the connection registry and the single fan-out point:
// every state transition in the system reaches peers only through it.
// Delivery order per connection is preserved by the per-connection send
// queue; a send to a closed connection is a no-op, never an error.
type Broadcaster struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	byAddress map[string]*Conn

	// resolveMatch maps a live match id to its two agents so match-scoped
	// events can be targeted. Set once at wiring time.
	resolveMatch func(matchID string) (agentA, agentB string, ok bool)

	log slog.Logger
}

func NewBroadcaster(log slog.Logger) *Broadcaster {
	return &Broadcaster{
		conns:     make(map[string]*Conn),
		byAddress: make(map[string]*Conn),
		log:       log,
	}
}

// SetMatchResolver wires the match-to-agents lookup. Must be called
// before the first match event is emitted.
func (b *Broadcaster) SetMatchResolver(fn func(matchID string) (string, string, bool)) {
	b.resolveMatch = fn
}

// AddConnection registers a connection under its role.
func (b *Broadcaster) AddConnection(c *Conn) {
	b.mu.Lock()
	b.conns[c.ID] = c
	b.mu.Unlock()
	b.log.Debugf("connection %s added (role=%s)", c.ID, c.Role)
}

// RemoveConnection drops a connection and every association it holds.
func (b *Broadcaster) RemoveConnection(c *Conn) {
	b.mu.Lock()
	delete(b.conns, c.ID)
	if addr := c.Address(); addr != "" && b.byAddress[addr] == c {
		delete(b.byAddress, addr)
	}
	b.mu.Unlock()
	b.log.Debugf("connection %s removed", c.ID)
}

// BindAddress associates an authenticated address with a connection. A
// reconnecting agent displaces the previous binding.
func (b *Broadcaster) BindAddress(c *Conn, addr string) {
	c.bindAddress(addr)
	b.mu.Lock()
	b.byAddress[addr] = c
	b.mu.Unlock()
}

// ConnByAddress returns the connection bound to addr, if any.
func (b *Broadcaster) ConnByAddress(addr string) *Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byAddress[addr]
}

// Stats counts live connections by role.
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var s Stats
	for _, c := range b.conns {
		switch c.Role {
		case wire.RoleAgent:
			s.Agents++
		case wire.RoleSpectator:
			s.Spectators++
		case wire.RoleBettor:
			s.Bettors++
		}
		if c.Address() != "" {
			s.Identified++
		}
	}
	return s
}

// Send delivers a typed message to one connection.
func (b *Broadcaster) Send(c *Conn, msgType string, payload any) {
	if c == nil {
		return
	}
	c.Enqueue(wire.NewEnvelope(msgType, payload))
}

// Broadcast fans a typed message out to every connection of the given
// role, or to all connections when role is "*".
func (b *Broadcaster) Broadcast(role wire.Role, msgType string, payload any) {
	env := wire.NewEnvelope(msgType, payload)
	b.mu.RLock()
	targets := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		if role == "*" || c.Role == role {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()
	for _, c := range targets {
		c.Enqueue(env)
	}
}

// --- arena.Emitter ---

// EmitMatch delivers a match event to its two agents and to every
// spectator and bettor.
func (b *Broadcaster) EmitMatch(matchID, evtType string, payload any) {
	if b.resolveMatch != nil {
		if a, bb, ok := b.resolveMatch(matchID); ok {
			b.Send(b.ConnByAddress(a), evtType, payload)
			b.Send(b.ConnByAddress(bb), evtType, payload)
		}
	}
	b.Broadcast(wire.RoleSpectator, evtType, payload)
	b.Broadcast(wire.RoleBettor, evtType, payload)
}

// EmitTo delivers an event to the connection bound to address. Unknown
// addresses are a no-op.
func (b *Broadcaster) EmitTo(address, evtType string, payload any) {
	b.Send(b.ConnByAddress(address), evtType, payload)
}

// EmitAll delivers an event to every connection.
func (b *Broadcaster) EmitAll(evtType string, payload any) {
	b.Broadcast("*", evtType, payload)
}
