package serverdb

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateEntry     = errors.New("match already stored")
	ErrMatchNotFound      = errors.New("match not found")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrMainBucketNotFound = errors.New("main bucket not found")
)

// MatchRecord is the immutable archive of one completed match. TxRef is
// filled in asynchronously once the ledger settlement lands.
type MatchRecord struct {
	MatchID      string    `json:"match_id"`
	TournamentID string    `json:"tournament_id,omitempty"`
	AgentA       string    `json:"agent_a"`
	AgentB       string    `json:"agent_b"`
	ChoiceA      uint8     `json:"choice_a"`
	ChoiceB      uint8     `json:"choice_b"`
	PointsA      int       `json:"points_a"`
	PointsB      int       `json:"points_b"`
	Outcome      string    `json:"outcome"`
	Forfeited    []string  `json:"forfeited,omitempty"`
	EndedAt      time.Time `json:"ended_at"`
	TxRef        string    `json:"tx_ref,omitempty"`
}

// AgentStats aggregates one address's archived results.
type AgentStats struct {
	Address string `json:"address"`
	Matches int    `json:"matches"`
	Wins    int    `json:"wins"`
	Splits  int    `json:"splits"`
	Steals  int    `json:"steals"`
	Points  int64  `json:"points"`
}

// ServerDB archives completed matches and the aggregates behind the
// leaderboard and per-agent queries. Live engine state never depends on
// it.
type ServerDB interface {
	StoreMatch(ctx context.Context, rec *MatchRecord) error
	FetchMatch(ctx context.Context, matchID string) (*MatchRecord, error)
	FetchMatchesByAddress(ctx context.Context, address string, limit int) ([]*MatchRecord, error)
	UpdateMatchTxRef(ctx context.Context, matchID, txRef string) error

	FetchAgentStats(ctx context.Context, address string) (*AgentStats, error)
	Leaderboard(ctx context.Context, limit int) ([]*AgentStats, error)

	Close() error
}
