package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitsteal/wire"
)

func newTestTournamentQueue(capacity, minimum int) (*TournamentQueue, *stubEmitter, *manualScheduler, *[][]string) {
	emit := &stubEmitter{}
	sched := &manualScheduler{}
	var cohorts [][]string
	tq := NewTournamentQueue(TournamentQueueConfig{
		Log:       testLogger(),
		Emitter:   emit,
		Scheduler: sched,
		Capacity:  capacity,
		Minimum:   minimum,
		OnCohort:  func(players []string) { cohorts = append(cohorts, players) },
	})
	return tq, emit, sched, &cohorts
}

func TestTournamentQueueStartsWhenFull(t *testing.T) {
	tq, emit, _, cohorts := newTestTournamentQueue(4, 2)

	players := testPlayers(4)
	for _, p := range players {
		tq.Join(p, "conn-"+p)
	}

	require.Len(t, *cohorts, 1)
	assert.Equal(t, players, (*cohorts)[0])
	assert.Zero(t, tq.Len())
	assert.Equal(t, 4, emit.count(wire.EvtTournamentQueueJoined))
}

func TestTournamentQueueDuplicateJoinAbsorbed(t *testing.T) {
	tq, emit, _, _ := newTestTournamentQueue(4, 2)

	tq.Join(addrA, "c1")
	tq.Join(addrA, "c1")
	assert.Equal(t, 1, tq.Len())
	assert.Equal(t, 1, emit.count(wire.EvtTournamentQueueJoined))
}

func TestTournamentQueueWindowExpiryStartsViableCohort(t *testing.T) {
	tq, _, sched, cohorts := newTestTournamentQueue(8, 2)

	tq.Join(addrA, "c1")
	tq.Join(addrB, "c2")
	require.Empty(t, *cohorts)
	assert.False(t, tq.Deadline().IsZero())

	sched.fireNext()
	require.Len(t, *cohorts, 1)
	assert.Equal(t, []string{addrA, addrB}, (*cohorts)[0])
}

func TestTournamentQueueWindowExpiryCancelsBelowMinimum(t *testing.T) {
	tq, emit, sched, cohorts := newTestTournamentQueue(8, 4)

	tq.Join(addrA, "c1")
	sched.fireNext()

	assert.Empty(t, *cohorts)
	assert.Zero(t, tq.Len())

	// The cancellation is announced.
	found := false
	for _, ev := range emit.events {
		if ev.evtType == wire.EvtTournamentQueueUpdate {
			if p, ok := ev.payload.(wire.TournamentQueueUpdatePayload); ok && p.Cancelled {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a cancelled TOURNAMENT_QUEUE_UPDATE")
}

func TestTournamentQueueStaleWindowTimerIgnored(t *testing.T) {
	tq, _, sched, cohorts := newTestTournamentQueue(2, 2)

	// Filling the cohort starts it and bumps the generation.
	tq.Join(addrA, "c1")
	tq.Join(addrB, "c2")
	require.Len(t, *cohorts, 1)

	// A new cohort begins accumulating before the first window timer
	// fires; the stale timer must not start or cancel it.
	tq.Join("cccc", "c3")
	sched.fireNext() // stale timer from the first cohort
	assert.Equal(t, 1, tq.Len())
	require.Len(t, *cohorts, 1)
}

func TestTournamentQueueAbandonedCohortTimerIgnored(t *testing.T) {
	tq, emit, sched, cohorts := newTestTournamentQueue(8, 2)

	// The sole registrant of a cohort leaves; the next join starts a new
	// cohort with its own window.
	tq.Join(addrA, "c1")
	require.True(t, tq.Remove(addrA))
	tq.Join(addrB, "c2")
	require.Len(t, sched.timers, 2)

	// The abandoned cohort's timer must not expire the new window.
	sched.fireNext()
	assert.Equal(t, 1, tq.Len())
	assert.Empty(t, *cohorts)
	for _, ev := range emit.events {
		if p, ok := ev.payload.(wire.TournamentQueueUpdatePayload); ok {
			assert.False(t, p.Cancelled, "stale timer cancelled the new cohort")
		}
	}

	// The new cohort's own timer still decides its fate.
	sched.fireNext()
	assert.Zero(t, tq.Len())
}

func TestTournamentQueueRemove(t *testing.T) {
	tq, _, _, _ := newTestTournamentQueue(8, 2)

	tq.Join(addrA, "c1")
	assert.True(t, tq.Remove(addrA))
	assert.False(t, tq.Remove(addrA))
	assert.Zero(t, tq.Len())
}
