package server

import (
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitsteal/wire"
)

// drain empties a connection's send queue and returns the event types in
// delivery order.
func drain(c *Conn) []string {
	var types []string
	for {
		select {
		case env := <-c.send:
			types = append(types, env.Type)
		default:
			return types
		}
	}
}

func newTestConn(role wire.Role) *Conn {
	return newConn(nil, role, slog.Disabled)
}

func TestBroadcasterRolesAndStats(t *testing.T) {
	b := NewBroadcaster(slog.Disabled)
	agent := newTestConn(wire.RoleAgent)
	spec := newTestConn(wire.RoleSpectator)
	bettor := newTestConn(wire.RoleBettor)
	for _, c := range []*Conn{agent, spec, bettor} {
		b.AddConnection(c)
	}
	b.BindAddress(agent, "aaaa")

	s := b.Stats()
	assert.Equal(t, 1, s.Agents)
	assert.Equal(t, 1, s.Spectators)
	assert.Equal(t, 1, s.Bettors)
	assert.Equal(t, 1, s.Identified)

	b.Broadcast(wire.RoleSpectator, wire.EvtQueueUpdate, nil)
	assert.Empty(t, drain(agent))
	assert.Equal(t, []string{wire.EvtQueueUpdate}, drain(spec))
	assert.Empty(t, drain(bettor))

	b.Broadcast("*", wire.EvtError, nil)
	assert.Equal(t, []string{wire.EvtError}, drain(agent))
	assert.Equal(t, []string{wire.EvtError}, drain(spec))
	assert.Equal(t, []string{wire.EvtError}, drain(bettor))
}

func TestBroadcasterBindAndEmitTo(t *testing.T) {
	b := NewBroadcaster(slog.Disabled)
	c1 := newTestConn(wire.RoleAgent)
	b.AddConnection(c1)
	b.BindAddress(c1, "aaaa")

	b.EmitTo("aaaa", wire.EvtSignChoice, nil)
	assert.Equal(t, []string{wire.EvtSignChoice}, drain(c1))

	// Unknown address is a no-op.
	b.EmitTo("bbbb", wire.EvtSignChoice, nil)

	// Reconnecting displaces the previous binding.
	c2 := newTestConn(wire.RoleAgent)
	b.AddConnection(c2)
	b.BindAddress(c2, "aaaa")
	assert.Same(t, c2, b.ConnByAddress("aaaa"))

	// Removing the stale connection leaves the new binding intact.
	b.RemoveConnection(c1)
	assert.Same(t, c2, b.ConnByAddress("aaaa"))

	b.RemoveConnection(c2)
	assert.Nil(t, b.ConnByAddress("aaaa"))
}

func TestBroadcasterEmitMatchTargets(t *testing.T) {
	b := NewBroadcaster(slog.Disabled)
	agentA := newTestConn(wire.RoleAgent)
	agentB := newTestConn(wire.RoleAgent)
	outsider := newTestConn(wire.RoleAgent)
	spec := newTestConn(wire.RoleSpectator)
	bettor := newTestConn(wire.RoleBettor)
	for _, c := range []*Conn{agentA, agentB, outsider, spec, bettor} {
		b.AddConnection(c)
	}
	b.BindAddress(agentA, "aaaa")
	b.BindAddress(agentB, "bbbb")
	b.BindAddress(outsider, "cccc")

	b.SetMatchResolver(func(matchID string) (string, string, bool) {
		if matchID == "m1" {
			return "aaaa", "bbbb", true
		}
		return "", "", false
	})

	b.EmitMatch("m1", wire.EvtMatchStarted, nil)
	assert.Equal(t, []string{wire.EvtMatchStarted}, drain(agentA))
	assert.Equal(t, []string{wire.EvtMatchStarted}, drain(agentB))
	assert.Empty(t, drain(outsider))
	assert.Equal(t, []string{wire.EvtMatchStarted}, drain(spec))
	assert.Equal(t, []string{wire.EvtMatchStarted}, drain(bettor))

	// Unresolvable matches still reach the audience.
	b.EmitMatch("m2", wire.EvtMatchConfirmed, nil)
	assert.Empty(t, drain(agentA))
	assert.Equal(t, []string{wire.EvtMatchConfirmed}, drain(spec))
}

func TestConnEnqueueAfterClose(t *testing.T) {
	c := newTestConn(wire.RoleSpectator)
	c.Close()
	require.NotPanics(t, func() {
		c.Enqueue(wire.NewEnvelope(wire.EvtError, nil))
	})
	// Close twice is safe.
	require.NotPanics(t, c.Close)
}
