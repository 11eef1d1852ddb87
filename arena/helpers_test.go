package arena

import (
	"time"

	"github.com/decred/slog"
)

// recordedEvent captures one emission for assertions.
type recordedEvent struct {
	scope   string // "match", "to", "all"
	target  string // match id or address
	evtType string
	payload any
}

// stubEmitter records every emission in order.
type stubEmitter struct {
	events []recordedEvent
}

func (e *stubEmitter) EmitMatch(matchID, evtType string, payload any) {
	e.events = append(e.events, recordedEvent{"match", matchID, evtType, payload})
}

func (e *stubEmitter) EmitTo(address, evtType string, payload any) {
	e.events = append(e.events, recordedEvent{"to", address, evtType, payload})
}

func (e *stubEmitter) EmitAll(evtType string, payload any) {
	e.events = append(e.events, recordedEvent{"all", "", evtType, payload})
}

func (e *stubEmitter) types() []string {
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.evtType
	}
	return out
}

func (e *stubEmitter) count(evtType string) int {
	n := 0
	for _, ev := range e.events {
		if ev.evtType == evtType {
			n++
		}
	}
	return n
}

// manualScheduler collects scheduled functions so tests fire deadlines
// deterministically.
type manualScheduler struct {
	timers []scheduledTimer
}

type scheduledTimer struct {
	d  time.Duration
	fn func()
}

func (s *manualScheduler) Schedule(d time.Duration, fn func()) {
	s.timers = append(s.timers, scheduledTimer{d, fn})
}

// fireNext runs the oldest pending timer.
func (s *manualScheduler) fireNext() {
	if len(s.timers) == 0 {
		return
	}
	t := s.timers[0]
	s.timers = s.timers[1:]
	t.fn()
}

// fireAll drains every pending timer in order, including ones armed while
// draining.
func (s *manualScheduler) fireAll() {
	for len(s.timers) > 0 {
		s.fireNext()
	}
}

func testLogger() slog.Logger {
	return slog.Disabled
}

func newTestMatchManager() (*MatchManager, *stubEmitter, *manualScheduler) {
	emit := &stubEmitter{}
	sched := &manualScheduler{}
	mm := NewMatchManager(MatchManagerConfig{
		Log:       testLogger(),
		Emitter:   emit,
		Scheduler: sched,
	})
	return mm, emit, sched
}
