package arena

import (
	"time"

	"github.com/decred/slog"

	"splitsteal/wire"
)

const (
	DefaultCohortCapacity     = 8
	DefaultCohortMinimum      = 4
	DefaultRegistrationWindow = 5 * time.Minute
)

// TournamentQueueConfig collects the cohort policy knobs.
type TournamentQueueConfig struct {
	Log       slog.Logger
	Emitter   Emitter
	Scheduler Scheduler

	Capacity int
	Minimum  int
	Window   time.Duration

	// OnCohort receives a full or viable cohort; the server wires it to
	// TournamentManager.Start.
	OnCohort func(players []string)
}

// TournamentQueue batches registrants into cohorts. A cohort starts the
// moment it fills; otherwise the registration deadline decides: at or
// above the minimum the accumulated cohort starts, below it the cohort is
// cancelled and registrants are told. The window is never extended.
type TournamentQueue struct {
	log   slog.Logger
	emit  Emitter
	sched Scheduler

	capacity int
	minimum  int
	window   time.Duration
	onCohort func([]string)

	entries  []QueueEntry
	deadline time.Time
	// generation detects stale window timers: it bumps every time the
	// cohort resets, and a timer armed against an older generation is
	// ignored.
	generation uint64
}

func NewTournamentQueue(cfg TournamentQueueConfig) *TournamentQueue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCohortCapacity
	}
	if cfg.Minimum <= 0 {
		cfg.Minimum = DefaultCohortMinimum
	}
	if cfg.Minimum < 2 {
		cfg.Minimum = 2
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRegistrationWindow
	}
	return &TournamentQueue{
		log:      cfg.Log,
		emit:     cfg.Emitter,
		sched:    cfg.Scheduler,
		capacity: cfg.Capacity,
		minimum:  cfg.Minimum,
		window:   cfg.Window,
		onCohort: cfg.OnCohort,
	}
}

// Join registers an address for the next cohort. Duplicate joins are
// absorbed. The first registrant of a cohort arms the registration
// window.
func (tq *TournamentQueue) Join(address, connID string) {
	for _, e := range tq.entries {
		if e.Address == address {
			return
		}
	}
	tq.entries = append(tq.entries, QueueEntry{
		Address:  address,
		ConnID:   connID,
		JoinedAt: time.Now(),
	})

	if len(tq.entries) == 1 {
		tq.deadline = time.Now().Add(tq.window)
		gen := tq.generation
		tq.sched.Schedule(tq.window, func() { tq.handleWindowExpiry(gen) })
	}

	tq.emit.EmitTo(address, wire.EvtTournamentQueueJoined, wire.TournamentQueueJoinedPayload{
		Address:  address,
		Position: len(tq.entries),
		Capacity: tq.capacity,
	})
	tq.broadcastUpdate(false)

	if len(tq.entries) >= tq.capacity {
		tq.log.Infof("tournament cohort filled (%d players)", len(tq.entries))
		tq.startCohort()
	}
}

// Remove drops a registrant, e.g. on disconnect. Emptying the cohort
// disarms its registration window: the next join starts a fresh cohort
// with a fresh window, and the old timer must not touch it.
func (tq *TournamentQueue) Remove(address string) bool {
	for i, e := range tq.entries {
		if e.Address == address {
			tq.entries = append(tq.entries[:i], tq.entries[i+1:]...)
			if len(tq.entries) == 0 {
				tq.deadline = time.Time{}
				tq.generation++
			}
			tq.broadcastUpdate(false)
			return true
		}
	}
	return false
}

// Entries returns a copy of the current cohort in join order.
func (tq *TournamentQueue) Entries() []QueueEntry {
	return append([]QueueEntry(nil), tq.entries...)
}

// Len returns the current cohort size.
func (tq *TournamentQueue) Len() int { return len(tq.entries) }

// Deadline returns when the current registration window closes; zero when
// no cohort is accumulating.
func (tq *TournamentQueue) Deadline() time.Time {
	if len(tq.entries) == 0 {
		return time.Time{}
	}
	return tq.deadline
}

func (tq *TournamentQueue) handleWindowExpiry(gen uint64) {
	if gen != tq.generation || len(tq.entries) == 0 {
		return
	}
	if len(tq.entries) >= tq.minimum {
		tq.log.Infof("registration window closed with %d players; starting", len(tq.entries))
		tq.startCohort()
		return
	}
	tq.log.Infof("registration window closed below minimum (%d < %d); cancelling cohort",
		len(tq.entries), tq.minimum)
	tq.entries = nil
	tq.generation++
	tq.broadcastUpdate(true)
}

func (tq *TournamentQueue) startCohort() {
	players := make([]string, len(tq.entries))
	for i, e := range tq.entries {
		players[i] = e.Address
	}
	tq.entries = nil
	tq.generation++
	tq.broadcastUpdate(false)
	if tq.onCohort != nil {
		tq.onCohort(players)
	}
}

func (tq *TournamentQueue) broadcastUpdate(cancelled bool) {
	var closes int64
	if len(tq.entries) > 0 {
		closes = tq.deadline.UnixMilli()
	}
	addrs := make([]string, len(tq.entries))
	for i, e := range tq.entries {
		addrs[i] = e.Address
	}
	tq.emit.EmitAll(wire.EvtTournamentQueueUpdate, wire.TournamentQueueUpdatePayload{
		Size:      len(tq.entries),
		Capacity:  tq.capacity,
		Addresses: addrs,
		ClosesAt:  closes,
		Cancelled: cancelled,
	})
}
