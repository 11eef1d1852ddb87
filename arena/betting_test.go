package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBetManager() *BetManager {
	return NewBetManager(testLogger())
}

func TestPoolLifecycle(t *testing.T) {
	bm := newTestBetManager()

	p := bm.Open("m1")
	assert.Equal(t, PoolOpen, p.State)
	// Re-opening returns the same pool.
	assert.Same(t, p, bm.Open("m1"))

	require.NoError(t, bm.PlaceBet("m1", "bettor1", OutcomeBothSplit, 100))
	require.NoError(t, bm.PlaceBet("m1", "bettor2", OutcomeASteals, 300))

	bm.Lock("m1")
	assert.Equal(t, PoolLocked, p.State)
	assert.ErrorIs(t, bm.PlaceBet("m1", "bettor3", OutcomeBothSplit, 50), ErrPoolNotOpen)

	payouts, err := bm.Settle("m1", OutcomeASteals)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, "bettor2", payouts[0].Bettor)
	assert.Equal(t, int64(400), payouts[0].Amount)

	// Settled pools reject everything.
	assert.ErrorIs(t, bm.PlaceBet("m1", "bettor3", OutcomeBothSplit, 50), ErrPoolNotOpen)
	_, err = bm.Settle("m1", OutcomeASteals)
	assert.ErrorIs(t, err, ErrPoolNotOpen)
}

func TestPoolRejections(t *testing.T) {
	bm := newTestBetManager()

	assert.ErrorIs(t, bm.PlaceBet("missing", "b", OutcomeBothSplit, 10), ErrPoolNotFound)

	bm.Open("m1")
	assert.ErrorIs(t, bm.PlaceBet("m1", "b", Outcome(9), 10), ErrUnknownOutcome)
	assert.ErrorIs(t, bm.PlaceBet("m1", "b", OutcomeBothSplit, 0), ErrInvalidStake)
	assert.ErrorIs(t, bm.PlaceBet("m1", "b", OutcomeBothSplit, -5), ErrInvalidStake)
}

func TestPoolOddsZeroWhenUnstaked(t *testing.T) {
	bm := newTestBetManager()
	p := bm.Open("m1")

	odds := p.Odds()
	for _, o := range odds {
		assert.Zero(t, o)
	}

	require.NoError(t, bm.PlaceBet("m1", "b1", OutcomeBothSteal, 50))
	require.NoError(t, bm.PlaceBet("m1", "b2", OutcomeBothSplit, 150))

	odds = p.Odds()
	assert.InDelta(t, 4.0, odds[OutcomeBothSteal], 1e-9)
	assert.InDelta(t, 200.0/150.0, odds[OutcomeBothSplit], 1e-9)
	assert.Zero(t, odds[OutcomeASteals])
	assert.Zero(t, odds[OutcomeBSteals])
}

func TestPoolSettleDistributesExactly(t *testing.T) {
	bm := newTestBetManager()
	bm.Open("m1")

	// 3 winners with uneven stakes; total pool 1000, winning stake 700.
	require.NoError(t, bm.PlaceBet("m1", "w1", OutcomeBSteals, 100))
	require.NoError(t, bm.PlaceBet("m1", "w2", OutcomeBSteals, 200))
	require.NoError(t, bm.PlaceBet("m1", "w3", OutcomeBSteals, 400))
	require.NoError(t, bm.PlaceBet("m1", "loser", OutcomeBothSplit, 300))

	payouts, err := bm.Settle("m1", OutcomeBSteals)
	require.NoError(t, err)
	require.Len(t, payouts, 3)

	var sum int64
	for _, p := range payouts {
		sum += p.Amount
	}
	// The remainder of floor division lands on the earliest winner so the
	// distributed sum equals the pool exactly.
	assert.Equal(t, int64(1000), sum)
	assert.GreaterOrEqual(t, payouts[0].Amount, int64(100*1000/700))
	assert.Equal(t, int64(200*1000/700), payouts[1].Amount)
	assert.Equal(t, int64(400*1000/700), payouts[2].Amount)
}

func TestPoolSettleLargeStakes(t *testing.T) {
	bm := newTestBetManager()
	bm.Open("m1")

	// Stakes near the int64 range: the product stake*total does not fit
	// in 64 bits, but each payout and their sum must still be exact.
	const stake = int64(3e18)
	require.NoError(t, bm.PlaceBet("m1", "w1", OutcomeASteals, stake))
	require.NoError(t, bm.PlaceBet("m1", "w2", OutcomeASteals, stake))
	require.NoError(t, bm.PlaceBet("m1", "loser", OutcomeBothSplit, stake))

	payouts, err := bm.Settle("m1", OutcomeASteals)
	require.NoError(t, err)
	require.Len(t, payouts, 2)

	var sum int64
	for _, p := range payouts {
		assert.Equal(t, int64(4.5e18), p.Amount)
		assert.Positive(t, p.Amount)
		sum += p.Amount
	}
	assert.Equal(t, 3*stake, sum)
}

func TestPoolSettleNobodyWon(t *testing.T) {
	bm := newTestBetManager()
	p := bm.Open("m1")

	require.NoError(t, bm.PlaceBet("m1", "b1", OutcomeBothSplit, 100))

	payouts, err := bm.Settle("m1", OutcomeBothSteal)
	require.NoError(t, err)
	assert.Empty(t, payouts)
	assert.Equal(t, PoolSettled, p.State)

	snap := p.Snapshot()
	assert.Equal(t, "SETTLED", snap.State)
	assert.Equal(t, "both_steal", snap.Winning)
	assert.Equal(t, int64(100), snap.Total)
}
