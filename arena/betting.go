package arena

import (
	"math/big"
	"time"

	"github.com/decred/slog"
)

// PoolState is the lifecycle of a betting pool.
type PoolState int

const (
	PoolOpen PoolState = iota
	PoolLocked
	PoolSettled
)

func (s PoolState) String() string {
	switch s {
	case PoolOpen:
		return "OPEN"
	case PoolLocked:
		return "LOCKED"
	case PoolSettled:
		return "SETTLED"
	}
	return "UNKNOWN"
}

// Bet is a single spectator stake against one outcome.
type Bet struct {
	Bettor   string    `json:"bettor"`
	Outcome  Outcome   `json:"outcome"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// Payout is one bettor's share of a settled pool.
type Payout struct {
	Bettor string `json:"bettor"`
	Amount int64  `json:"amount"`
}

// Pool holds the stakes against the four outcomes of one match. Opened
// when the match is created, locked when reveals begin, settled with the
// final outcome.
type Pool struct {
	MatchID string
	State   PoolState
	Bets    []Bet
	Winning Outcome
	settled bool
}

// Total returns the sum of all stakes in the pool.
func (p *Pool) Total() int64 {
	var t int64
	for _, b := range p.Bets {
		t += b.Amount
	}
	return t
}

// StakeOn returns the total staked on one outcome.
func (p *Pool) StakeOn(o Outcome) int64 {
	var t int64
	for _, b := range p.Bets {
		if b.Outcome == o {
			t += b.Amount
		}
	}
	return t
}

// Odds returns totalPool/stakeOnOutcome per outcome. An outcome with no
// stake reports zero rather than a division fault.
func (p *Pool) Odds() [NumOutcomes]float64 {
	var odds [NumOutcomes]float64
	total := p.Total()
	for o := 0; o < NumOutcomes; o++ {
		if stake := p.StakeOn(Outcome(o)); stake > 0 {
			odds[o] = float64(total) / float64(stake)
		}
	}
	return odds
}

// PoolSnapshot is the read-model served over the query surface.
type PoolSnapshot struct {
	MatchID string               `json:"match_id"`
	State   string               `json:"state"`
	Total   int64                `json:"total"`
	Stakes  [NumOutcomes]int64   `json:"stakes"`
	Odds    [NumOutcomes]float64 `json:"odds"`
	Winning string               `json:"winning_outcome,omitempty"`
	Bets    int                  `json:"bets"`
}

func (p *Pool) Snapshot() PoolSnapshot {
	snap := PoolSnapshot{
		MatchID: p.MatchID,
		State:   p.State.String(),
		Total:   p.Total(),
		Odds:    p.Odds(),
		Bets:    len(p.Bets),
	}
	for o := 0; o < NumOutcomes; o++ {
		snap.Stakes[o] = p.StakeOn(Outcome(o))
	}
	if p.settled {
		snap.Winning = p.Winning.String()
	}
	return snap
}

// BetManager owns one pool per match. Event-loop confined.
type BetManager struct {
	log   slog.Logger
	pools map[string]*Pool
}

func NewBetManager(log slog.Logger) *BetManager {
	return &BetManager{log: log, pools: make(map[string]*Pool)}
}

// Open creates the pool for a match. Opening twice is a no-op returning
// the existing pool.
func (bm *BetManager) Open(matchID string) *Pool {
	if p, ok := bm.pools[matchID]; ok {
		return p
	}
	p := &Pool{MatchID: matchID, State: PoolOpen}
	bm.pools[matchID] = p
	return p
}

// Pool returns the pool for a match, if one exists.
func (bm *BetManager) Pool(matchID string) *Pool { return bm.pools[matchID] }

// PlaceBet stakes amount on an outcome. Rejected unless the pool is OPEN
// and the outcome is one of the four defined ones.
func (bm *BetManager) PlaceBet(matchID, bettor string, outcome Outcome, amount int64) error {
	p := bm.pools[matchID]
	if p == nil {
		return ErrPoolNotFound
	}
	if p.State != PoolOpen {
		return ErrPoolNotOpen
	}
	if outcome < 0 || outcome >= NumOutcomes {
		return ErrUnknownOutcome
	}
	if amount <= 0 {
		return ErrInvalidStake
	}
	p.Bets = append(p.Bets, Bet{
		Bettor:   bettor,
		Outcome:  outcome,
		Amount:   amount,
		PlacedAt: time.Now(),
	})
	bm.log.Debugf("pool %s: %s staked %d on %s", matchID, bettor, amount, outcome)
	return nil
}

// Lock closes the pool to further bets. Called when the match enters
// SETTLING. Locking a missing or already locked pool is a no-op.
func (bm *BetManager) Lock(matchID string) {
	p := bm.pools[matchID]
	if p == nil || p.State != PoolOpen {
		return
	}
	p.State = PoolLocked
}

// Settle resolves the pool with the match's final outcome and returns the
// payouts: each winning bettor receives stake/totalWinningStake of the
// whole pool, in integer units. Floor division leaves a remainder of at
// most len(winners)-1 units; it goes to the earliest winning bettor so the
// distributed sum equals the pool exactly.
func (bm *BetManager) Settle(matchID string, winning Outcome) ([]Payout, error) {
	p := bm.pools[matchID]
	if p == nil {
		return nil, ErrPoolNotFound
	}
	if p.State == PoolSettled {
		return nil, ErrPoolNotOpen
	}
	p.State = PoolSettled
	p.Winning = winning
	p.settled = true

	total := p.Total()
	winStake := p.StakeOn(winning)
	if total == 0 || winStake == 0 {
		// Nothing staked, or nothing on the winning side: nothing to pay.
		return nil, nil
	}

	var payouts []Payout
	var paid int64
	for _, b := range p.Bets {
		if b.Outcome != winning {
			continue
		}
		amt := payoutShare(b.Amount, total, winStake)
		payouts = append(payouts, Payout{Bettor: b.Bettor, Amount: amt})
		paid += amt
	}
	if rem := total - paid; rem > 0 && len(payouts) > 0 {
		payouts[0].Amount += rem
	}
	bm.log.Infof("pool %s settled on %s: %d paid to %d bettors", matchID, winning, total, len(payouts))
	return payouts, nil
}

// payoutShare computes stake*total/winStake. The intermediate product
// can exceed 63 bits for large stakes, so it goes through big.Int; the
// quotient itself always fits, since stake <= winStake bounds it by
// total.
func payoutShare(stake, total, winStake int64) int64 {
	n := new(big.Int).Mul(big.NewInt(stake), big.NewInt(total))
	n.Quo(n, big.NewInt(winStake))
	return n.Int64()
}

// Remove drops a settled pool once the owning context has consumed the
// snapshot.
func (bm *BetManager) Remove(matchID string) { delete(bm.pools, matchID) }
