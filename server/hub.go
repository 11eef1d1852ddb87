package server

import (
	"context"
	"time"

	"github.com/decred/slog"
)

// hubQueueSize bounds pending events; the core drains far faster than
// agents can produce, so the bound only matters under abuse.
const hubQueueSize = 1024

// Hub is the single-threaded core: one goroutine executes every posted
// closure, so all arena state is mutated from exactly one place. Inbound
// messages, timer firings and query-surface reads all funnel through
// here, which makes races on queue/match/tournament state impossible by
// construction and gives timers and messages one FIFO order.
type Hub struct {
	events chan func()
	log    slog.Logger
}

func NewHub(log slog.Logger) *Hub {
	return &Hub{
		events: make(chan func(), hubQueueSize),
		log:    log,
	}
}

// Run processes events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Infof("hub: started")
	defer h.log.Infof("hub: stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-h.events:
			fn()
		}
	}
}

// Post queues fn for execution on the core. Never blocks the caller; a
// saturated queue drops the event and logs, since stalling a network
// reader would let one connection wedge the others.
func (h *Hub) Post(fn func()) {
	select {
	case h.events <- fn:
	default:
		h.log.Errorf("hub: event queue saturated, dropping event")
	}
}

// Call runs fn on the core and waits for it, for read paths that need a
// consistent snapshot. Unlike Post it blocks for queue space; dropping
// the closure would strand the caller.
func (h *Hub) Call(fn func()) {
	done := make(chan struct{})
	h.events <- func() {
		fn()
		close(done)
	}
	<-done
}

// Schedule implements arena.Scheduler: the timer fires by posting back
// into the core, so a deadline expiry is just another serialized event.
// Unlike Post, a firing blocks for queue space: dropping a phase
// deadline would leave its match stuck with no re-arm, and the sender
// is the timer's own goroutine, never a network reader.
func (h *Hub) Schedule(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { h.events <- fn })
}
