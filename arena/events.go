package arena

import "time"

// Emitter is the single fan-out seam between the engine and whatever
// transport is observing it. The server's broadcaster implements it; tests
// use a recording stub. Implementations must preserve, per receiving
// connection, the order in which events were emitted.
type Emitter interface {
	// EmitMatch delivers a typed event to every subscriber of a match:
	// its agents, spectators and bettors.
	EmitMatch(matchID, evtType string, payload any)

	// EmitTo delivers a typed event to the connection bound to address.
	// Sending to an unknown or closed address is a no-op.
	EmitTo(address, evtType string, payload any)

	// EmitAll delivers a typed event to every connection.
	EmitAll(evtType string, payload any)
}

// Scheduler schedules deadline timers. Fired functions must run on the
// same goroutine that owns the engine state; the server's hub scheduler
// posts them through its event loop, tests invoke them directly. Timers
// are never cancelled: a firing against state that already moved on is
// detected by the handler and ignored.
type Scheduler interface {
	Schedule(d time.Duration, fn func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, fn func())

func (f SchedulerFunc) Schedule(d time.Duration, fn func()) { f(d, fn) }
