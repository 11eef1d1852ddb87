package arena

import (
	"time"
)

// MatchPhase tracks the commit-reveal state machine. It is deliberately a
// distinct type from TournamentPhase; the two label sets do not overlap.
type MatchPhase int

const (
	PhaseNegotiation MatchPhase = iota
	PhaseAwaitingChoices
	PhaseSettling
	PhaseComplete
)

func (p MatchPhase) String() string {
	switch p {
	case PhaseNegotiation:
		return "NEGOTIATION"
	case PhaseAwaitingChoices:
		return "AWAITING_CHOICES"
	case PhaseSettling:
		return "SETTLING"
	case PhaseComplete:
		return "COMPLETE"
	}
	return "UNKNOWN"
}

// ChatMessage is one negotiation-phase message. Free text only, no game
// effect.
type ChatMessage struct {
	From   string    `json:"from"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// side holds the per-agent protocol state of a match.
type side struct {
	addr      string
	ready     bool
	commit    string
	revealed  Choice
	forfeited bool
}

// resolved reports whether this side needs nothing further in SETTLING.
func (s *side) resolved() bool {
	return s.forfeited || s.revealed.Valid()
}

// Result is the immutable record of a completed match. ChoiceA/ChoiceB are
// the effective choices that drove scoring; a forfeited agent's effective
// choice is SPLIT against the opponent's STEAL, so the outcome always
// favors the agent who kept to the protocol.
type Result struct {
	ChoiceA   Choice    `json:"choice_a"`
	ChoiceB   Choice    `json:"choice_b"`
	PointsA   int       `json:"points_a"`
	PointsB   int       `json:"points_b"`
	Outcome   Outcome   `json:"outcome"`
	Forfeited []string  `json:"forfeited,omitempty"`
	EndedAt   time.Time `json:"ended_at"`
}

// Match is owned by the MatchManager for its lifetime. Other components
// refer to it by ID only. None of its methods lock; all access is
// serialized by the owner.
type Match struct {
	ID           string
	TournamentID string // empty for quick matches
	AgentA       string
	AgentB       string

	Phase    MatchPhase
	Deadline time.Time
	Messages []ChatMessage

	sideA *side
	sideB *side

	Result    *Result
	CreatedAt time.Time
}

// sideOf returns the protocol state for addr, or nil if addr is not one of
// the match's agents.
func (m *Match) sideOf(addr string) *side {
	switch addr {
	case m.AgentA:
		return m.sideA
	case m.AgentB:
		return m.sideB
	}
	return nil
}

// opponentOf returns the other agent's address.
func (m *Match) opponentOf(addr string) string {
	if addr == m.AgentA {
		return m.AgentB
	}
	return m.AgentA
}

// CommitHashA returns agent A's commitment, empty until submitted.
func (m *Match) CommitHashA() string { return m.sideA.commit }

// CommitHashB returns agent B's commitment, empty until submitted.
func (m *Match) CommitHashB() string { return m.sideB.commit }

// Snapshot is the read-model of a match served over the query surface.
type MatchSnapshot struct {
	ID           string        `json:"id"`
	TournamentID string        `json:"tournament_id,omitempty"`
	AgentA       string        `json:"agent_a"`
	AgentB       string        `json:"agent_b"`
	Phase        string        `json:"phase"`
	Deadline     time.Time     `json:"deadline"`
	Messages     []ChatMessage `json:"messages,omitempty"`
	CommittedA   bool          `json:"committed_a"`
	CommittedB   bool          `json:"committed_b"`
	Result       *Result       `json:"result,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Snapshot copies the externally visible state of the match.
func (m *Match) Snapshot() MatchSnapshot {
	snap := MatchSnapshot{
		ID:           m.ID,
		TournamentID: m.TournamentID,
		AgentA:       m.AgentA,
		AgentB:       m.AgentB,
		Phase:        m.Phase.String(),
		Deadline:     m.Deadline,
		CommittedA:   m.sideA.commit != "",
		CommittedB:   m.sideB.commit != "",
		Result:       m.Result,
		CreatedAt:    m.CreatedAt,
	}
	snap.Messages = append(snap.Messages, m.Messages...)
	return snap
}
