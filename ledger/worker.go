package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/decred/slog"
)

const (
	workerQueueSize   = 256
	initialRetryDelay = 2 * time.Second
	maxRetryDelay     = time.Minute
)

// Job is one settlement awaiting recording.
type Job struct {
	MatchID string
	Outcome string
	AgentA  string
	AgentB  string

	attempt int
}

// Worker drains settlement jobs against a Recorder, retrying transient
// failures with doubling delays. A ledger outage slows recording down
// but never touches match state; results delivered to agents are final
// regardless of what happens here.
type Worker struct {
	rec  Recorder
	jobs chan Job
	log  slog.Logger

	// onRecorded receives the tx ref once a job lands, typically to
	// stamp the archived match record.
	onRecorded func(matchID, txRef string)
}

func NewWorker(rec Recorder, log slog.Logger, onRecorded func(matchID, txRef string)) *Worker {
	return &Worker{
		rec:        rec,
		jobs:       make(chan Job, workerQueueSize),
		log:        log,
		onRecorded: onRecorded,
	}
}

// Enqueue queues a settlement for recording. Never blocks; if the queue
// is full the job is dropped with an error log, relying on the
// collaborator's idempotency for any later manual replay.
func (w *Worker) Enqueue(j Job) {
	select {
	case w.jobs <- j:
	default:
		w.log.Errorf("ledger: queue full, dropping settlement for match %s", j.MatchID)
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infof("ledger worker: started")
	defer w.log.Infof("ledger worker: stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-w.jobs:
			w.process(ctx, j)
		}
	}
}

func (w *Worker) process(ctx context.Context, j Job) {
	txRef, err := w.rec.RecordSettlement(ctx, j.MatchID, j.Outcome, j.AgentA, j.AgentB)
	if err == nil {
		w.log.Infof("ledger: match %s settled, tx %s", j.MatchID, txRef)
		if w.onRecorded != nil {
			w.onRecorded(j.MatchID, txRef)
		}
		return
	}
	if errors.Is(err, ErrRejected) {
		w.log.Errorf("ledger: match %s rejected, not retrying: %v", j.MatchID, err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	j.attempt++
	delay := retryDelay(j.attempt)
	w.log.Warnf("ledger: match %s attempt %d failed (%v), retrying in %s",
		j.MatchID, j.attempt, err, delay)
	time.AfterFunc(delay, func() { w.Enqueue(j) })
}

// retryDelay doubles from initialRetryDelay up to maxRetryDelay. High
// attempt counts must hit the cap, not shift the delay into overflow.
func retryDelay(attempt int) time.Duration {
	if attempt >= 6 {
		return maxRetryDelay
	}
	d := initialRetryDelay << (attempt - 1)
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}
