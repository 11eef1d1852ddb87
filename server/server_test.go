package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitsteal/arena"
	"splitsteal/server/serverdb"
	"splitsteal/wire"
)

type stubRecorder struct{}

func (stubRecorder) RecordSettlement(context.Context, string, string, string, string) (string, error) {
	return "tx-stub", nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := serverdb.NewBoltDB(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewServer(Config{
		Log:     slog.Disabled,
		Archive: db,
		Ledger:  stubRecorder{},
	})
}

// addAgent registers a pre-authenticated agent connection.
func addAgent(s *Server, addr string) *Conn {
	c := newConn(nil, wire.RoleAgent, slog.Disabled)
	s.conns.AddConnection(c)
	s.conns.BindAddress(c, addr)
	return c
}

func send(s *Server, c *Conn, msgType string, payload any) {
	s.dispatch(c, wire.NewEnvelope(msgType, payload))
}

// lastOfType scans a drained event list for the newest payload of one
// type.
func lastOfType(t *testing.T, c *Conn, evtType string) (json.RawMessage, bool) {
	t.Helper()
	var found json.RawMessage
	ok := false
	for {
		select {
		case env := <-c.send:
			if env.Type == evtType {
				found, ok = env.Payload, true
			}
		default:
			return found, ok
		}
	}
}

func TestQuickMatchFullFlow(t *testing.T) {
	s := newTestServer(t)
	a := addAgent(s, "aaaa")
	b := addAgent(s, "bbbb")
	spectator := newConn(nil, wire.RoleSpectator, slog.Disabled)
	s.conns.AddConnection(spectator)

	send(s, a, wire.MsgJoinQueue, nil)
	send(s, b, wire.MsgJoinQueue, nil)

	raw, ok := lastOfType(t, spectator, wire.EvtMatchStarted)
	require.True(t, ok, "spectator should see the match start")
	var started wire.MatchStartedPayload
	require.NoError(t, json.Unmarshal(raw, &started))
	matchID := started.MatchID

	// Pool opens with the match.
	require.NotNil(t, s.bets.Pool(matchID))

	// Both ready ends negotiation early.
	send(s, a, wire.MsgNegotiationSay, wire.NegotiationSayPayload{MatchID: matchID, Text: "split?", Ready: true})
	send(s, b, wire.MsgNegotiationSay, wire.NegotiationSayPayload{MatchID: matchID, Ready: true})

	_, ok = lastOfType(t, a, wire.EvtSignChoice)
	require.True(t, ok, "agent should be prompted to commit")

	nonceA := []byte("nonce-a-nonce-a-nonce-a-nonce-a!")
	nonceB := []byte("nonce-b-nonce-b-nonce-b-nonce-b!")
	send(s, a, wire.MsgSubmitCommitment, wire.SubmitCommitmentPayload{
		MatchID: matchID, CommitHash: arena.CommitHash(arena.ChoiceSplit, nonceA)})
	send(s, b, wire.MsgSubmitCommitment, wire.SubmitCommitmentPayload{
		MatchID: matchID, CommitHash: arena.CommitHash(arena.ChoiceSteal, nonceB)})

	send(s, a, wire.MsgSubmitReveal, wire.SubmitRevealPayload{
		MatchID: matchID, Choice: uint8(arena.ChoiceSplit), Nonce: hex.EncodeToString(nonceA)})
	send(s, b, wire.MsgSubmitReveal, wire.SubmitRevealPayload{
		MatchID: matchID, Choice: uint8(arena.ChoiceSteal), Nonce: hex.EncodeToString(nonceB)})

	raw, ok = lastOfType(t, spectator, wire.EvtMatchConfirmed)
	require.True(t, ok)
	var confirmed wire.MatchConfirmedPayload
	require.NoError(t, json.Unmarshal(raw, &confirmed))
	assert.Equal(t, "b_steals", confirmed.Outcome)
	assert.Equal(t, 0, confirmed.PointsA)
	assert.Equal(t, 5, confirmed.PointsB)

	// The result is archived.
	rec, err := s.archive.FetchMatch(context.Background(), matchID)
	require.NoError(t, err)
	assert.Equal(t, "b_steals", rec.Outcome)
	assert.Equal(t, "aaaa", rec.AgentA)

	// Still-connected agents return to the queue and are re-paired into
	// a fresh match.
	assert.NotNil(t, s.matches.ActiveMatch("aaaa"))
	assert.NotNil(t, s.matches.ActiveMatch("bbbb"))
}

func TestDispatchGuards(t *testing.T) {
	s := newTestServer(t)

	// Unauthenticated agents cannot queue.
	anon := newConn(nil, wire.RoleAgent, slog.Disabled)
	s.conns.AddConnection(anon)
	send(s, anon, wire.MsgJoinQueue, nil)
	raw, ok := lastOfType(t, anon, wire.EvtError)
	require.True(t, ok)
	var errPayload wire.ErrorPayload
	require.NoError(t, json.Unmarshal(raw, &errPayload))
	assert.Equal(t, "not_authenticated", errPayload.Code)

	// Spectators cannot queue either.
	spec := newConn(nil, wire.RoleSpectator, slog.Disabled)
	s.conns.AddConnection(spec)
	send(s, spec, wire.MsgJoinQueue, nil)
	raw, ok = lastOfType(t, spec, wire.EvtError)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(raw, &errPayload))
	assert.Equal(t, "wrong_role", errPayload.Code)

	// Unknown message types are answered, not fatal.
	send(s, spec, "NO_SUCH_TYPE", nil)
	_, ok = lastOfType(t, spec, wire.EvtError)
	assert.True(t, ok)
}

func TestPlaceBetFlow(t *testing.T) {
	s := newTestServer(t)
	a := addAgent(s, "aaaa")
	b := addAgent(s, "bbbb")
	bettor := newConn(nil, wire.RoleBettor, slog.Disabled)
	s.conns.AddConnection(bettor)
	s.conns.BindAddress(bettor, "cccc")

	send(s, a, wire.MsgJoinQueue, nil)
	send(s, b, wire.MsgJoinQueue, nil)
	m := s.matches.ActiveMatch("aaaa")
	require.NotNil(t, m)

	send(s, bettor, wire.MsgPlaceBet, wire.PlaceBetPayload{
		MatchID: m.ID, Outcome: "both_split", Amount: 100})
	pool := s.bets.Pool(m.ID)
	require.NotNil(t, pool)
	assert.Equal(t, int64(100), pool.Total())

	// Agents may not bet.
	send(s, a, wire.MsgPlaceBet, wire.PlaceBetPayload{
		MatchID: m.ID, Outcome: "both_split", Amount: 100})
	raw, ok := lastOfType(t, a, wire.EvtError)
	require.True(t, ok)
	var errPayload wire.ErrorPayload
	require.NoError(t, json.Unmarshal(raw, &errPayload))
	assert.Equal(t, "wrong_role", errPayload.Code)

	// Unknown outcome spelling is rejected.
	send(s, bettor, wire.MsgPlaceBet, wire.PlaceBetPayload{
		MatchID: m.ID, Outcome: "nobody_steals", Amount: 100})
	raw, ok = lastOfType(t, bettor, wire.EvtError)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(raw, &errPayload))
	assert.Equal(t, "unknown_outcome", errPayload.Code)
}

func TestJoinTournamentQueueLeavesQuickQueue(t *testing.T) {
	s := newTestServer(t)
	a := addAgent(s, "aaaa")

	send(s, a, wire.MsgJoinQueue, nil)
	assert.True(t, s.queue.Contains("aaaa"))

	send(s, a, wire.MsgJoinTournamentQueue, nil)
	assert.False(t, s.queue.Contains("aaaa"))
	assert.Equal(t, 1, s.tqueue.Len())

	raw, ok := lastOfType(t, a, wire.EvtTournamentQueueJoined)
	require.True(t, ok)
	var joined wire.TournamentQueueJoinedPayload
	require.NoError(t, json.Unmarshal(raw, &joined))
	assert.Equal(t, "aaaa", joined.Address)
	assert.Equal(t, 1, joined.Position)
}

func TestDisconnectCleansUp(t *testing.T) {
	s := newTestServer(t)
	a := addAgent(s, "aaaa")

	send(s, a, wire.MsgJoinQueue, nil)
	require.True(t, s.queue.Contains("aaaa"))

	s.handleDisconnect(a)
	assert.False(t, s.queue.Contains("aaaa"))
	assert.Nil(t, s.conns.ConnByAddress("aaaa"))
}

func TestCohortStartsTournament(t *testing.T) {
	db, err := serverdb.NewBoltDB(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewServer(Config{
		Log:            slog.Disabled,
		Archive:        db,
		Ledger:         stubRecorder{},
		CohortCapacity: 4,
		CohortMinimum:  4,
	})

	conns := make([]*Conn, 4)
	for i, addr := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		conns[i] = addAgent(s, addr)
		send(s, conns[i], wire.MsgJoinTournamentQueue, nil)
	}

	// Filling the cohort starts a tournament with round-one matches.
	require.Len(t, s.tournaments.Active(), 1)
	tour := s.tournaments.Active()[0]
	assert.Equal(t, arena.RoundsFor(4), tour.TotalRounds)
	assert.Equal(t, 0, s.tqueue.Len())

	for _, addr := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		m := s.matches.ActiveMatch(addr)
		require.NotNil(t, m, "agent %s should be seated", addr)
		assert.Equal(t, tour.ID, m.TournamentID)
	}
}
