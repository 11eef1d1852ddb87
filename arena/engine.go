package arena

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"splitsteal/wire"
)

const (
	// commitHashLen is the hex length of a blake256 digest.
	commitHashLen = 64

	DefaultNegotiationWindow = 45 * time.Second
	DefaultChoiceWindow      = 15 * time.Second
)

// MatchManagerConfig collects the knobs for a MatchManager.
type MatchManagerConfig struct {
	Log               slog.Logger
	Emitter           Emitter
	Scheduler         Scheduler
	NegotiationWindow time.Duration
	ChoiceWindow      time.Duration
}

// MatchManager owns every live match and drives the commit-reveal state
// machine. It is confined to the server's event loop: no method may be
// called concurrently with another. Callbacks fire synchronously on the
// same goroutine.
type MatchManager struct {
	log   slog.Logger
	emit  Emitter
	sched Scheduler

	negotiationWindow time.Duration
	choiceWindow      time.Duration

	matches map[string]*Match
	byAgent map[string]*Match

	// onCreated fires after a match is announced; the server uses it to
	// open the betting pool.
	onCreated func(m *Match)

	// onSettling fires when a match enters SETTLING; the server uses it
	// to lock the betting pool before any reveal is accepted.
	onSettling func(m *Match)

	// onComplete fires exactly once per match after the result is sealed.
	// This is the sole coupling point to the owning context; the engine
	// does not know whether it ran a quick match or a tournament match.
	onComplete func(m *Match)
}

func NewMatchManager(cfg MatchManagerConfig) *MatchManager {
	if cfg.NegotiationWindow <= 0 {
		cfg.NegotiationWindow = DefaultNegotiationWindow
	}
	if cfg.ChoiceWindow <= 0 {
		cfg.ChoiceWindow = DefaultChoiceWindow
	}
	return &MatchManager{
		log:               cfg.Log,
		emit:              cfg.Emitter,
		sched:             cfg.Scheduler,
		negotiationWindow: cfg.NegotiationWindow,
		choiceWindow:      cfg.ChoiceWindow,
		matches:           make(map[string]*Match),
		byAgent:           make(map[string]*Match),
	}
}

// OnCreated registers the creation hook. Must be called before the first
// match is created.
func (mm *MatchManager) OnCreated(fn func(m *Match)) { mm.onCreated = fn }

// OnSettling registers the settling hook. Must be called before the first
// match is created.
func (mm *MatchManager) OnSettling(fn func(m *Match)) { mm.onSettling = fn }

// OnComplete registers the completion callback. Must be called before the
// first match is created.
func (mm *MatchManager) OnComplete(fn func(m *Match)) { mm.onComplete = fn }

// ActiveMatch returns the live match the address is playing in, if any.
func (mm *MatchManager) ActiveMatch(addr string) *Match { return mm.byAgent[addr] }

// Match returns a live match by id.
func (mm *MatchManager) Match(id string) *Match { return mm.matches[id] }

// Matches returns all live matches.
func (mm *MatchManager) Matches() []*Match {
	out := make([]*Match, 0, len(mm.matches))
	for _, m := range mm.matches {
		out = append(out, m)
	}
	return out
}

// CreateMatch pairs two agents into a new match in NEGOTIATION. Both
// agents must be free; an address is never in two matches at once.
func (mm *MatchManager) CreateMatch(agentA, agentB, tournamentID string) (*Match, error) {
	if agentA == agentB {
		return nil, fmt.Errorf("cannot pair %s against itself", agentA)
	}
	if mm.byAgent[agentA] != nil || mm.byAgent[agentB] != nil {
		return nil, ErrAgentBusy
	}

	now := time.Now()
	m := &Match{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		AgentA:       agentA,
		AgentB:       agentB,
		Phase:        PhaseNegotiation,
		Deadline:     now.Add(mm.negotiationWindow),
		sideA:        &side{addr: agentA},
		sideB:        &side{addr: agentB},
		CreatedAt:    now,
	}
	mm.matches[m.ID] = m
	mm.byAgent[agentA] = m
	mm.byAgent[agentB] = m

	mm.log.Infof("match %s created: %s vs %s (tournament=%q)", m.ID, agentA, agentB, tournamentID)

	mm.emit.EmitMatch(m.ID, wire.EvtMatchStarted, wire.MatchStartedPayload{
		MatchID:      m.ID,
		TournamentID: m.TournamentID,
		AgentA:       m.AgentA,
		AgentB:       m.AgentB,
		Phase:        m.Phase.String(),
		Deadline:     m.Deadline.UnixMilli(),
	})
	mm.scheduleTimeout(m.ID, PhaseNegotiation, mm.negotiationWindow)
	if mm.onCreated != nil {
		mm.onCreated(m)
	}
	return m, nil
}

// scheduleTimeout arms the deadline timer for a phase. The firing carries
// the phase it was armed against; a match that has already advanced
// ignores it.
func (mm *MatchManager) scheduleTimeout(matchID string, phase MatchPhase, d time.Duration) {
	mm.sched.Schedule(d, func() { mm.handleTimeout(matchID, phase) })
}

func (mm *MatchManager) handleTimeout(matchID string, phase MatchPhase) {
	m := mm.matches[matchID]
	if m == nil || m.Phase != phase {
		// Stale firing: the match settled or moved on before the timer hit.
		return
	}
	switch phase {
	case PhaseNegotiation:
		mm.enterChoices(m)
	case PhaseAwaitingChoices:
		mm.enterSettling(m)
	case PhaseSettling:
		for _, s := range []*side{m.sideA, m.sideB} {
			if !s.resolved() {
				s.forfeited = true
				mm.log.Infof("match %s: %s forfeited (no reveal by deadline)", m.ID, s.addr)
			}
		}
		mm.settle(m)
	}
}

// HandleNegotiationMessage appends a free-text message to the match log
// and rebroadcasts it. When ready is set the sender is marked ready; both
// agents ready ends the phase ahead of the deadline.
func (mm *MatchManager) HandleNegotiationMessage(matchID, from, text string, ready bool) error {
	m := mm.matches[matchID]
	if m == nil {
		return ErrMatchNotFound
	}
	s := m.sideOf(from)
	if s == nil {
		return ErrNotInMatch
	}
	if m.Phase != PhaseNegotiation {
		return ErrWrongPhase
	}

	if text != "" {
		msg := ChatMessage{From: from, Text: text, SentAt: time.Now()}
		m.Messages = append(m.Messages, msg)
		mm.emit.EmitMatch(m.ID, wire.EvtNegotiationMessage, wire.NegotiationMessagePayload{
			MatchID: m.ID,
			From:    from,
			Text:    text,
			SentAt:  msg.SentAt.UnixMilli(),
		})
	}
	if ready {
		s.ready = true
		if m.sideA.ready && m.sideB.ready {
			mm.enterChoices(m)
		}
	}
	return nil
}

// enterChoices moves a match into AWAITING_CHOICES and prompts both agents
// to commit.
func (mm *MatchManager) enterChoices(m *Match) {
	m.Phase = PhaseAwaitingChoices
	m.Deadline = time.Now().Add(mm.choiceWindow)

	mm.emit.EmitMatch(m.ID, wire.EvtChoicePhaseStarted, wire.ChoicePhaseStartedPayload{
		MatchID:  m.ID,
		Deadline: m.Deadline.UnixMilli(),
	})
	for _, addr := range []string{m.AgentA, m.AgentB} {
		mm.emit.EmitTo(addr, wire.EvtSignChoice, wire.SignChoicePayload{
			MatchID:  m.ID,
			Address:  addr,
			Deadline: m.Deadline.UnixMilli(),
		})
	}
	mm.scheduleTimeout(m.ID, PhaseAwaitingChoices, mm.choiceWindow)
}

// HandleCommit records an agent's commitment hash. Exactly one commitment
// is accepted per agent per match.
func (mm *MatchManager) HandleCommit(matchID, from, commitHex string) error {
	m := mm.matches[matchID]
	if m == nil {
		return ErrMatchNotFound
	}
	s := m.sideOf(from)
	if s == nil {
		return ErrNotInMatch
	}
	if m.Phase != PhaseAwaitingChoices {
		return ErrWrongPhase
	}
	if s.commit != "" {
		return ErrDuplicateCommitment
	}
	if len(commitHex) != commitHashLen {
		return ErrInvalidCommitment
	}
	if _, err := hex.DecodeString(commitHex); err != nil {
		return ErrInvalidCommitment
	}

	s.commit = commitHex
	mm.emit.EmitMatch(m.ID, wire.EvtChoiceLocked, wire.ChoiceLockedPayload{
		MatchID: m.ID,
		Address: from,
	})
	if m.sideA.commit != "" && m.sideB.commit != "" {
		mm.enterSettling(m)
	}
	return nil
}

// enterSettling moves a match into SETTLING. An agent that never committed
// is forfeited on entry; if that resolves both sides the match settles
// immediately.
func (mm *MatchManager) enterSettling(m *Match) {
	m.Phase = PhaseSettling
	m.Deadline = time.Now().Add(mm.choiceWindow)

	if mm.onSettling != nil {
		mm.onSettling(m)
	}

	for _, s := range []*side{m.sideA, m.sideB} {
		if s.commit == "" {
			s.forfeited = true
			mm.log.Infof("match %s: %s forfeited (no commitment)", m.ID, s.addr)
		}
	}
	if m.sideA.resolved() && m.sideB.resolved() {
		mm.settle(m)
		return
	}
	mm.scheduleTimeout(m.ID, PhaseSettling, mm.choiceWindow)
}

// HandleReveal checks a revealed (choice, nonce) pair against the stored
// commitment. A mismatch is not an error to retry: it forfeits the agent
// on the spot.
func (mm *MatchManager) HandleReveal(matchID, from string, choice Choice, nonceHex string) error {
	m := mm.matches[matchID]
	if m == nil {
		return ErrMatchNotFound
	}
	s := m.sideOf(from)
	if s == nil {
		return ErrNotInMatch
	}
	if m.Phase != PhaseSettling {
		return ErrWrongPhase
	}
	if s.forfeited {
		return ErrNoCommitment
	}
	if s.revealed.Valid() {
		return ErrAlreadyRevealed
	}
	if !choice.Valid() {
		return ErrInvalidChoice
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || !VerifyCommit(s.commit, choice, nonce) {
		s.forfeited = true
		mm.log.Infof("match %s: %s forfeited (reveal does not match commitment)", m.ID, from)
	} else {
		s.revealed = choice
		mm.emit.EmitMatch(m.ID, wire.EvtChoiceAccepted, wire.ChoiceAcceptedPayload{
			MatchID: m.ID,
			Address: from,
		})
	}

	if m.sideA.resolved() && m.sideB.resolved() {
		mm.settle(m)
	}
	return nil
}

// settle computes the final record and seals the match. A lone forfeiter's
// effective choice is SPLIT against the opponent's STEAL, so the honest
// agent takes the full pot; a double forfeit scores as both-steal.
func (mm *MatchManager) settle(m *Match) {
	choiceA, choiceB := m.sideA.revealed, m.sideB.revealed
	var forfeited []string
	switch {
	case m.sideA.forfeited && m.sideB.forfeited:
		choiceA, choiceB = ChoiceSteal, ChoiceSteal
		forfeited = []string{m.AgentA, m.AgentB}
	case m.sideA.forfeited:
		choiceA, choiceB = ChoiceSplit, ChoiceSteal
		forfeited = []string{m.AgentA}
	case m.sideB.forfeited:
		choiceA, choiceB = ChoiceSteal, ChoiceSplit
		forfeited = []string{m.AgentB}
	}

	pointsA, pointsB, outcome := Payoff(choiceA, choiceB)
	m.Result = &Result{
		ChoiceA:   choiceA,
		ChoiceB:   choiceB,
		PointsA:   pointsA,
		PointsB:   pointsB,
		Outcome:   outcome,
		Forfeited: forfeited,
		EndedAt:   time.Now(),
	}
	m.Phase = PhaseComplete

	if len(forfeited) > 0 {
		mm.emit.EmitMatch(m.ID, wire.EvtChoiceTimeout, wire.ChoiceTimeoutPayload{
			MatchID:   m.ID,
			Forfeited: forfeited,
		})
	}
	mm.emit.EmitMatch(m.ID, wire.EvtChoicesRevealed, wire.ChoicesRevealedPayload{
		MatchID: m.ID,
		ChoiceA: uint8(choiceA),
		ChoiceB: uint8(choiceB),
		Outcome: outcome.String(),
		PointsA: pointsA,
		PointsB: pointsB,
	})
	mm.emit.EmitMatch(m.ID, wire.EvtMatchConfirmed, wire.MatchConfirmedPayload{
		MatchID: m.ID,
		Outcome: outcome.String(),
		PointsA: pointsA,
		PointsB: pointsB,
		AgentA:  m.AgentA,
		AgentB:  m.AgentB,
	})

	mm.log.Infof("match %s complete: %s (%d-%d)", m.ID, outcome, pointsA, pointsB)

	delete(mm.matches, m.ID)
	delete(mm.byAgent, m.AgentA)
	delete(mm.byAgent, m.AgentB)

	if mm.onComplete != nil {
		mm.onComplete(m)
	}
}
