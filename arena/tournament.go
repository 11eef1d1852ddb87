package arena

import (
	"sort"
	"time"
)

// TournamentPhase is deliberately distinct from MatchPhase; the two enums
// share no values or labels.
type TournamentPhase int

const (
	TournamentActive TournamentPhase = iota
	TournamentComplete
	TournamentCancelled
)

func (p TournamentPhase) String() string {
	switch p {
	case TournamentActive:
		return "ACTIVE"
	case TournamentComplete:
		return "COMPLETE"
	case TournamentCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Standing is one player's tournament score line. Tiebreak is the
// Buchholz score: the sum of this player's opponents' points, recomputed
// whenever points change.
type Standing struct {
	Address   string   `json:"address"`
	Points    int      `json:"points"`
	Tiebreak  float64  `json:"tiebreak"`
	Opponents []string `json:"opponents"`
	Byes      int      `json:"byes"`
}

// Pairing is one table of a round. MatchID is set when the engine creates
// the match; Done when that match completes.
type Pairing struct {
	A       string `json:"a"`
	B       string `json:"b"`
	MatchID string `json:"match_id"`
	Done    bool   `json:"done"`
}

// Round is one Swiss round: its pairings plus any bye recipients.
type Round struct {
	Number   int        `json:"number"`
	Pairings []*Pairing `json:"pairings"`
	Byes     []string   `json:"byes,omitempty"`
}

// complete reports whether every match of the round has settled.
func (r *Round) complete() bool {
	for _, p := range r.Pairings {
		if !p.Done {
			return false
		}
	}
	return true
}

// Tournament runs a fixed cohort through Swiss-system rounds. Owned by the
// TournamentManager; matches are referenced by id only.
type Tournament struct {
	ID           string
	Phase        TournamentPhase
	CurrentRound int
	TotalRounds  int
	Players      []string
	Standings    map[string]*Standing
	Rounds       []*Round
	CreatedAt    time.Time
}

func newTournament(id string, players []string, totalRounds int) *Tournament {
	t := &Tournament{
		ID:          id,
		Phase:       TournamentActive,
		TotalRounds: totalRounds,
		Players:     append([]string(nil), players...),
		Standings:   make(map[string]*Standing, len(players)),
		CreatedAt:   time.Now(),
	}
	for _, p := range players {
		t.Standings[p] = &Standing{Address: p}
	}
	return t
}

// played reports whether a and b already faced each other in this
// tournament.
func (t *Tournament) played(a, b string) bool {
	sa := t.Standings[a]
	if sa == nil {
		return false
	}
	for _, opp := range sa.Opponents {
		if opp == b {
			return true
		}
	}
	return false
}

// round returns the current round, nil before the first one starts.
func (t *Tournament) round() *Round {
	if t.CurrentRound == 0 || t.CurrentRound > len(t.Rounds) {
		return nil
	}
	return t.Rounds[t.CurrentRound-1]
}

// recomputeTiebreaks refreshes every Buchholz score from current points.
func (t *Tournament) recomputeTiebreaks() {
	for _, s := range t.Standings {
		var sum float64
		for _, opp := range s.Opponents {
			if so := t.Standings[opp]; so != nil {
				sum += float64(so.Points)
			}
		}
		s.Tiebreak = sum
	}
}

// ranked returns the standings sorted by points, then tiebreak, then
// address for determinism.
func (t *Tournament) ranked() []*Standing {
	out := make([]*Standing, 0, len(t.Standings))
	for _, s := range t.Standings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Tiebreak != out[j].Tiebreak {
			return out[i].Tiebreak > out[j].Tiebreak
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// TournamentSnapshot is the read-model served over the query surface.
type TournamentSnapshot struct {
	ID           string     `json:"id"`
	Phase        string     `json:"phase"`
	CurrentRound int        `json:"current_round"`
	TotalRounds  int        `json:"total_rounds"`
	Players      []string   `json:"players"`
	Standings    []Standing `json:"standings"`
	Rounds       []Round    `json:"rounds,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (t *Tournament) Snapshot() TournamentSnapshot {
	snap := TournamentSnapshot{
		ID:           t.ID,
		Phase:        t.Phase.String(),
		CurrentRound: t.CurrentRound,
		TotalRounds:  t.TotalRounds,
		Players:      append([]string(nil), t.Players...),
		CreatedAt:    t.CreatedAt,
	}
	for _, s := range t.ranked() {
		snap.Standings = append(snap.Standings, *s)
	}
	for _, r := range t.Rounds {
		rc := Round{Number: r.Number, Byes: append([]string(nil), r.Byes...)}
		for _, p := range r.Pairings {
			pc := *p
			rc.Pairings = append(rc.Pairings, &pc)
		}
		snap.Rounds = append(snap.Rounds, rc)
	}
	return snap
}
