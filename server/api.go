package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"splitsteal/arena"
	"splitsteal/server/serverdb"
	"splitsteal/wire"
)

// registerAPI mounts the read-only query surface. Handlers snapshot live
// state via hub.Call so every response is internally consistent; nothing
// here mutates anything.
func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /matches", s.apiMatches)
	mux.HandleFunc("GET /matches/{id}", s.apiMatch)
	mux.HandleFunc("GET /matches/{id}/pool", s.apiPool)
	mux.HandleFunc("GET /matches/{id}/odds", s.apiOdds)
	mux.HandleFunc("GET /queue", s.apiQueue)
	mux.HandleFunc("GET /tournamentqueue", s.apiTournamentQueue)
	mux.HandleFunc("GET /tournaments", s.apiTournaments)
	mux.HandleFunc("GET /tournaments/{id}", s.apiTournament)
	mux.HandleFunc("GET /tournaments/{id}/standings", s.apiStandings)
	mux.HandleFunc("GET /agents/{address}", s.apiAgent)
	mux.HandleFunc("GET /leaderboard", s.apiLeaderboard)
	mux.HandleFunc("GET /stats", s.apiStats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ErrorPayload{Message: msg})
}

func (s *Server) apiMatches(w http.ResponseWriter, r *http.Request) {
	var snaps []arena.MatchSnapshot
	s.hub.Call(func() {
		for _, m := range s.matches.Matches() {
			snaps = append(snaps, m.Snapshot())
		}
	})
	if snaps == nil {
		snaps = []arena.MatchSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// apiMatch serves a live match snapshot, falling back to the archive for
// completed ones.
func (s *Server) apiMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var snap *arena.MatchSnapshot
	s.hub.Call(func() {
		if m := s.matches.Match(id); m != nil {
			ms := m.Snapshot()
			snap = &ms
		}
	})
	if snap != nil {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	rec, err := s.archive.FetchMatch(r.Context(), id)
	if errors.Is(err, serverdb.ErrMatchNotFound) {
		writeAPIError(w, http.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) apiPool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var snap *arena.PoolSnapshot
	s.hub.Call(func() {
		if p := s.bets.Pool(id); p != nil {
			ps := p.Snapshot()
			snap = &ps
		}
	})
	if snap == nil {
		writeAPIError(w, http.StatusNotFound, "pool not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) apiOdds(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var odds *[arena.NumOutcomes]float64
	s.hub.Call(func() {
		if p := s.bets.Pool(id); p != nil {
			o := p.Odds()
			odds = &o
		}
	})
	if odds == nil {
		writeAPIError(w, http.StatusNotFound, "pool not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		arena.OutcomeBothSplit.String(): odds[arena.OutcomeBothSplit],
		arena.OutcomeASteals.String():   odds[arena.OutcomeASteals],
		arena.OutcomeBSteals.String():   odds[arena.OutcomeBSteals],
		arena.OutcomeBothSteal.String(): odds[arena.OutcomeBothSteal],
	})
}

func (s *Server) apiQueue(w http.ResponseWriter, r *http.Request) {
	var entries []arena.QueueEntry
	s.hub.Call(func() { entries = s.queue.Entries() })
	if entries == nil {
		entries = []arena.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) apiTournamentQueue(w http.ResponseWriter, r *http.Request) {
	var entries []arena.QueueEntry
	var deadline time.Time
	s.hub.Call(func() {
		entries = s.tqueue.Entries()
		deadline = s.tqueue.Deadline()
	})
	resp := struct {
		Entries  []arena.QueueEntry `json:"entries"`
		ClosesAt *time.Time         `json:"closes_at,omitempty"`
	}{Entries: entries}
	if resp.Entries == nil {
		resp.Entries = []arena.QueueEntry{}
	}
	if !deadline.IsZero() {
		resp.ClosesAt = &deadline
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) apiTournaments(w http.ResponseWriter, r *http.Request) {
	var snaps []arena.TournamentSnapshot
	s.hub.Call(func() {
		for _, t := range s.tournaments.Active() {
			snaps = append(snaps, t.Snapshot())
		}
	})
	if snaps == nil {
		snaps = []arena.TournamentSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) apiTournament(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var snap *arena.TournamentSnapshot
	s.hub.Call(func() {
		if t := s.tournaments.Tournament(id); t != nil {
			ts := t.Snapshot()
			snap = &ts
		}
	})
	if snap == nil {
		writeAPIError(w, http.StatusNotFound, "tournament not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) apiStandings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var standings []arena.Standing
	var found bool
	s.hub.Call(func() {
		if t := s.tournaments.Tournament(id); t != nil {
			found = true
			standings = t.Snapshot().Standings
		}
	})
	if !found {
		writeAPIError(w, http.StatusNotFound, "tournament not found")
		return
	}
	if standings == nil {
		standings = []arena.Standing{}
	}
	writeJSON(w, http.StatusOK, standings)
}

// apiAgent serves an agent's live status, archived aggregates and recent
// matches. Known means either currently connected or present in the
// archive.
func (s *Server) apiAgent(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	var connected, queued bool
	var activeMatch string
	s.hub.Call(func() {
		connected = s.conns.ConnByAddress(address) != nil
		queued = s.queue.Contains(address)
		if m := s.matches.ActiveMatch(address); m != nil {
			activeMatch = m.ID
		}
	})

	stats, err := s.archive.FetchAgentStats(r.Context(), address)
	if err != nil && !errors.Is(err, serverdb.ErrAgentNotFound) {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil && !connected {
		writeAPIError(w, http.StatusNotFound, "agent not found")
		return
	}
	recent, err := s.archive.FetchMatchesByAddress(r.Context(), address, 20)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recent == nil {
		recent = []*serverdb.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, struct {
		Address     string                  `json:"address"`
		Connected   bool                    `json:"connected"`
		Queued      bool                    `json:"queued"`
		ActiveMatch string                  `json:"active_match,omitempty"`
		Stats       *serverdb.AgentStats    `json:"stats,omitempty"`
		Recent      []*serverdb.MatchRecord `json:"recent_matches"`
	}{address, connected, queued, activeMatch, stats, recent})
}

func (s *Server) apiLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	board, err := s.archive.Leaderboard(r.Context(), limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if board == nil {
		board = []*serverdb.AgentStats{}
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) apiStats(w http.ResponseWriter, r *http.Request) {
	var connStats Stats
	var liveMatches, queued, cohort, activeTournaments int
	s.hub.Call(func() {
		connStats = s.conns.Stats()
		liveMatches = len(s.matches.Matches())
		queued = s.queue.Len()
		cohort = s.tqueue.Len()
		activeTournaments = len(s.tournaments.Active())
	})
	writeJSON(w, http.StatusOK, struct {
		Connections Stats `json:"connections"`
		LiveMatches int   `json:"live_matches"`
		Queued      int   `json:"queued"`
		Cohort      int   `json:"tournament_cohort"`
		Tournaments int   `json:"active_tournaments"`
	}{connStats, liveMatches, queued, cohort, activeTournaments})
}
