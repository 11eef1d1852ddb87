package server

import (
	"encoding/json"
	"errors"

	"splitsteal/arena"
	"splitsteal/wire"
)

// dispatch routes one inbound frame. It runs on the core, so every
// handler below touches arena state without further synchronization.
// Protocol violations answer with an ERROR frame and leave the
// connection open; only the socket layer ever closes a connection.
func (s *Server) dispatch(c *Conn, env wire.Envelope) {
	switch env.Type {
	case wire.MsgRequestChallenge:
		s.sendChallenge(c)
	case wire.MsgAuthVerify:
		s.handleAuthVerify(c, env.Payload)
	case wire.MsgJoinQueue:
		s.handleJoinQueue(c)
	case wire.MsgLeaveQueue:
		s.handleLeaveQueue(c)
	case wire.MsgNegotiationSay:
		s.handleNegotiationSay(c, env.Payload)
	case wire.MsgSubmitCommitment:
		s.handleSubmitCommitment(c, env.Payload)
	case wire.MsgSubmitReveal:
		s.handleSubmitReveal(c, env.Payload)
	case wire.MsgPlaceBet:
		s.handlePlaceBet(c, env.Payload)
	case wire.MsgJoinTournamentQueue:
		s.handleJoinTournamentQueue(c)
	default:
		s.sendError(c, "unknown_type", "unrecognized message type "+env.Type)
	}
}

func (s *Server) sendError(c *Conn, code, msg string) {
	s.conns.Send(c, wire.EvtError, wire.ErrorPayload{Code: code, Message: msg})
}

// requireAgent returns the authenticated address of an agent connection,
// answering with an ERROR frame when the requirement is not met.
func (s *Server) requireAgent(c *Conn) (string, bool) {
	if c.Role != wire.RoleAgent {
		s.sendError(c, "wrong_role", "only agents may do that")
		return "", false
	}
	addr := c.Address()
	if addr == "" {
		s.sendError(c, "not_authenticated", "authenticate first")
		return "", false
	}
	return addr, true
}

func decode[T any](s *Server, c *Conn, raw json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.sendError(c, "bad_payload", "malformed payload")
		return v, false
	}
	return v, true
}

func (s *Server) handleAuthVerify(c *Conn, raw json.RawMessage) {
	p, ok := decode[wire.AuthVerifyPayload](s, c, raw)
	if !ok {
		return
	}
	addr, err := s.auth.Verify(p.ChallengeID, c.ID, p.PubKey, p.Signature)
	if err != nil {
		s.log.Debugf("conn %s: auth failed: %v", c.ID, err)
		s.conns.Send(c, wire.EvtAuthFailed, wire.AuthFailedPayload{Reason: err.Error()})
		return
	}
	c.setChallengeID("")
	s.conns.BindAddress(c, addr)
	s.conns.Send(c, wire.EvtAuthSuccess, wire.AuthSuccessPayload{Address: addr})
	s.log.Infof("conn %s authenticated as %s", c.ID, addr)
}

func (s *Server) handleJoinQueue(c *Conn) {
	addr, ok := s.requireAgent(c)
	if !ok {
		return
	}
	if s.matches.ActiveMatch(addr) != nil {
		s.sendError(c, "busy", "already in a match")
		return
	}
	s.enqueueAgent(addr)
}

func (s *Server) handleLeaveQueue(c *Conn) {
	addr, ok := s.requireAgent(c)
	if !ok {
		return
	}
	if s.queue.Remove(addr) {
		s.broadcastQueueUpdate()
	}
}

func (s *Server) handleNegotiationSay(c *Conn, raw json.RawMessage) {
	addr, ok := s.requireAgent(c)
	if !ok {
		return
	}
	p, ok := decode[wire.NegotiationSayPayload](s, c, raw)
	if !ok {
		return
	}
	if err := s.matches.HandleNegotiationMessage(p.MatchID, addr, p.Text, p.Ready); err != nil {
		s.sendArenaError(c, err)
	}
}

func (s *Server) handleSubmitCommitment(c *Conn, raw json.RawMessage) {
	addr, ok := s.requireAgent(c)
	if !ok {
		return
	}
	p, ok := decode[wire.SubmitCommitmentPayload](s, c, raw)
	if !ok {
		return
	}
	if err := s.matches.HandleCommit(p.MatchID, addr, p.CommitHash); err != nil {
		s.sendArenaError(c, err)
	}
}

func (s *Server) handleSubmitReveal(c *Conn, raw json.RawMessage) {
	addr, ok := s.requireAgent(c)
	if !ok {
		return
	}
	p, ok := decode[wire.SubmitRevealPayload](s, c, raw)
	if !ok {
		return
	}
	if err := s.matches.HandleReveal(p.MatchID, addr, arena.Choice(p.Choice), p.Nonce); err != nil {
		s.sendArenaError(c, err)
	}
}

func (s *Server) handlePlaceBet(c *Conn, raw json.RawMessage) {
	if c.Role != wire.RoleBettor {
		s.sendError(c, "wrong_role", "only bettors may place bets")
		return
	}
	bettor := c.Address()
	if bettor == "" {
		s.sendError(c, "not_authenticated", "authenticate first")
		return
	}
	p, ok := decode[wire.PlaceBetPayload](s, c, raw)
	if !ok {
		return
	}
	outcome, err := arena.ParseOutcome(p.Outcome)
	if err != nil {
		s.sendArenaError(c, err)
		return
	}
	if err := s.bets.PlaceBet(p.MatchID, bettor, outcome, p.Amount); err != nil {
		s.sendArenaError(c, err)
	}
}

func (s *Server) handleJoinTournamentQueue(c *Conn) {
	addr, ok := s.requireAgent(c)
	if !ok {
		return
	}
	if s.matches.ActiveMatch(addr) != nil {
		s.sendError(c, "busy", "already in a match")
		return
	}
	// Leaving the quick queue is implicit; an agent registers for one
	// thing at a time.
	if s.queue.Remove(addr) {
		s.broadcastQueueUpdate()
	}
	s.tqueue.Join(addr, c.ID)
}

// sendArenaError maps a domain error onto an ERROR frame code.
func (s *Server) sendArenaError(c *Conn, err error) {
	code := "rejected"
	switch {
	case errors.Is(err, arena.ErrMatchNotFound):
		code = "match_not_found"
	case errors.Is(err, arena.ErrNotInMatch):
		code = "not_in_match"
	case errors.Is(err, arena.ErrWrongPhase):
		code = "wrong_phase"
	case errors.Is(err, arena.ErrDuplicateCommitment):
		code = "duplicate_commitment"
	case errors.Is(err, arena.ErrInvalidCommitment):
		code = "invalid_commitment"
	case errors.Is(err, arena.ErrNoCommitment):
		code = "no_commitment"
	case errors.Is(err, arena.ErrAlreadyRevealed):
		code = "already_revealed"
	case errors.Is(err, arena.ErrInvalidChoice):
		code = "invalid_choice"
	case errors.Is(err, arena.ErrPoolNotFound):
		code = "pool_not_found"
	case errors.Is(err, arena.ErrPoolNotOpen):
		code = "pool_not_open"
	case errors.Is(err, arena.ErrUnknownOutcome):
		code = "unknown_outcome"
	case errors.Is(err, arena.ErrInvalidStake):
		code = "invalid_stake"
	case errors.Is(err, arena.ErrAgentBusy):
		code = "busy"
	}
	s.sendError(c, code, err.Error())
}
