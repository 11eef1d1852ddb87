package arena

import (
	"math"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"splitsteal/wire"
)

// byePoints is what sitting out a round is worth: the split/split payoff.
const byePoints = 3

// TournamentManager runs Swiss tournaments on top of the MatchEngine.
// Event-loop confined, like everything else in this package.
type TournamentManager struct {
	log     slog.Logger
	emit    Emitter
	matches *MatchManager

	tournaments map[string]*Tournament
	// finished tournaments stay addressable for the query surface until
	// the server archives them.
	archived map[string]*Tournament
}

func NewTournamentManager(log slog.Logger, emit Emitter, matches *MatchManager) *TournamentManager {
	return &TournamentManager{
		log:         log,
		emit:        emit,
		matches:     matches,
		tournaments: make(map[string]*Tournament),
		archived:    make(map[string]*Tournament),
	}
}

// RoundsFor returns the Swiss round count for a cohort: ceil(log2(n)),
// minimum 1.
func RoundsFor(n int) int {
	if n < 2 {
		return 1
	}
	r := int(math.Ceil(math.Log2(float64(n))))
	if r < 1 {
		r = 1
	}
	return r
}

// Tournament returns an active or recently finished tournament.
func (tm *TournamentManager) Tournament(id string) *Tournament {
	if t := tm.tournaments[id]; t != nil {
		return t
	}
	return tm.archived[id]
}

// Active returns all running tournaments.
func (tm *TournamentManager) Active() []*Tournament {
	out := make([]*Tournament, 0, len(tm.tournaments))
	for _, t := range tm.tournaments {
		out = append(out, t)
	}
	return out
}

// Start creates a tournament for the cohort and launches round one.
func (tm *TournamentManager) Start(players []string, totalRounds int) *Tournament {
	if totalRounds <= 0 {
		totalRounds = RoundsFor(len(players))
	}
	t := newTournament(uuid.NewString(), players, totalRounds)
	tm.tournaments[t.ID] = t

	tm.log.Infof("tournament %s started: %d players, %d rounds", t.ID, len(players), totalRounds)

	tm.emit.EmitAll(wire.EvtTournamentCreated, wire.TournamentCreatedPayload{
		TournamentID: t.ID,
		Players:      append([]string(nil), t.Players...),
		TotalRounds:  t.TotalRounds,
	})
	for _, p := range t.Players {
		tm.emit.EmitTo(p, wire.EvtTournamentPlayerJoined, wire.TournamentPlayerJoinedPayload{
			TournamentID: t.ID,
			Address:      p,
		})
	}
	tm.emit.EmitAll(wire.EvtTournamentStarted, wire.TournamentStartedPayload{
		TournamentID: t.ID,
		TotalRounds:  t.TotalRounds,
	})

	tm.startRound(t)
	return t
}

// startRound pairs the field and instantiates one match per pairing.
// A bye is settled immediately with the split/split payoff.
func (tm *TournamentManager) startRound(t *Tournament) {
	t.CurrentRound++
	pairs, byes := swissPair(t)

	round := &Round{Number: t.CurrentRound, Byes: byes}
	t.Rounds = append(t.Rounds, round)

	for _, bye := range byes {
		s := t.Standings[bye]
		s.Points += byePoints
		s.Byes++
		tm.emit.EmitTo(bye, wire.EvtTournamentInvite, wire.TournamentInvitePayload{
			TournamentID: t.ID,
			Address:      bye,
			Round:        t.CurrentRound,
			Bye:          true,
		})
	}

	var wirePairs [][]string
	for _, pr := range pairs {
		p := &Pairing{A: pr[0], B: pr[1]}
		round.Pairings = append(round.Pairings, p)
		wirePairs = append(wirePairs, []string{p.A, p.B})
	}

	tm.emit.EmitAll(wire.EvtTournamentRoundStarted, wire.TournamentRoundStartedPayload{
		TournamentID: t.ID,
		Round:        t.CurrentRound,
		Pairings:     wirePairs,
		Byes:         byes,
	})

	for _, p := range round.Pairings {
		m, err := tm.matches.CreateMatch(p.A, p.B, t.ID)
		if err != nil {
			// Should not happen: tournament players are never in the quick
			// queue and each appears in one pairing. Score the table as a
			// double forfeit rather than wedging the round.
			tm.log.Errorf("tournament %s round %d: create match %s vs %s: %v",
				t.ID, t.CurrentRound, p.A, p.B, err)
			p.Done = true
			t.Standings[p.A].Opponents = append(t.Standings[p.A].Opponents, p.B)
			t.Standings[p.B].Opponents = append(t.Standings[p.B].Opponents, p.A)
			continue
		}
		p.MatchID = m.ID
		for _, addr := range []string{p.A, p.B} {
			tm.emit.EmitTo(addr, wire.EvtTournamentInvite, wire.TournamentInvitePayload{
				TournamentID: t.ID,
				Address:      addr,
				Round:        t.CurrentRound,
				Opponent:     m.opponentOf(addr),
			})
		}
	}

	if round.complete() {
		// Degenerate round (all byes / failed creates).
		tm.finishRound(t, round)
	}
}

// HandleMatchComplete is wired to the engine's completion callback for
// matches carrying this manager's tournament id. Round N+1 starts only
// once every match of round N has settled.
func (tm *TournamentManager) HandleMatchComplete(m *Match) {
	t := tm.tournaments[m.TournamentID]
	if t == nil || t.Phase != TournamentActive {
		return
	}
	round := t.round()
	if round == nil {
		return
	}

	tm.UpdatePoints(t.ID, m.AgentA, m.AgentB, m.Result.ChoiceA, m.Result.ChoiceB)

	for _, p := range round.Pairings {
		if p.MatchID == m.ID {
			p.Done = true
			break
		}
	}

	tm.emit.EmitAll(wire.EvtTournamentUpdate, wire.TournamentUpdatePayload{
		TournamentID: t.ID,
		Round:        t.CurrentRound,
		Standings:    tm.wireStandings(t),
	})

	if round.complete() {
		tm.finishRound(t, round)
	}
}

// UpdatePoints applies the payoff matrix to the standings and records the
// pairing for repeat avoidance. Choices are the effective (post-forfeit)
// ones.
func (tm *TournamentManager) UpdatePoints(tournamentID, addrA, addrB string, choiceA, choiceB Choice) {
	t := tm.Tournament(tournamentID)
	if t == nil {
		return
	}
	sa, sb := t.Standings[addrA], t.Standings[addrB]
	if sa == nil || sb == nil {
		return
	}
	pointsA, pointsB, _ := Payoff(choiceA, choiceB)
	sa.Points += pointsA
	sb.Points += pointsB
	sa.Opponents = append(sa.Opponents, addrB)
	sb.Opponents = append(sb.Opponents, addrA)
	t.recomputeTiebreaks()
}

func (tm *TournamentManager) finishRound(t *Tournament, round *Round) {
	tm.emit.EmitAll(wire.EvtTournamentRoundComplete, wire.TournamentRoundCompletePayload{
		TournamentID: t.ID,
		Round:        round.Number,
	})
	if t.CurrentRound >= t.TotalRounds {
		tm.complete(t)
		return
	}
	tm.startRound(t)
}

func (tm *TournamentManager) complete(t *Tournament) {
	t.Phase = TournamentComplete
	delete(tm.tournaments, t.ID)
	tm.archived[t.ID] = t

	tm.log.Infof("tournament %s complete after %d rounds", t.ID, t.CurrentRound)
	tm.emit.EmitAll(wire.EvtTournamentComplete, wire.TournamentCompletePayload{
		TournamentID: t.ID,
		Ranking:      tm.wireStandings(t),
	})
}

func (tm *TournamentManager) wireStandings(t *Tournament) []wire.StandingEntry {
	ranked := t.ranked()
	out := make([]wire.StandingEntry, len(ranked))
	for i, s := range ranked {
		out[i] = wire.StandingEntry{Address: s.Address, Points: s.Points, Tiebreak: s.Tiebreak}
	}
	return out
}
