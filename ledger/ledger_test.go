package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRecorderRecordsSettlement(t *testing.T) {
	var gotReq settlementRequest
	var gotContract, gotCredential string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContract = r.Header.Get("X-Contract-Address")
		gotCredential = r.Header.Get("X-Operator-Credential")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(settlementResponse{TxRef: "0xabc123"})
	}))
	defer srv.Close()

	rec := NewHTTPRecorder(srv.URL, "contract-1", "op-secret")
	txRef, err := rec.RecordSettlement(context.Background(), "m1", "both_split", "aaaa", "bbbb")
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", txRef)
	assert.Equal(t, "m1", gotReq.MatchID)
	assert.Equal(t, "both_split", gotReq.Outcome)
	assert.Equal(t, "contract-1", gotContract)
	assert.Equal(t, "op-secret", gotCredential)
}

func TestHTTPRecorderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Contract-Address") {
		case "reject":
			w.WriteHeader(http.StatusUnprocessableEntity)
		case "flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.Write([]byte(`{}`)) // missing tx_ref
		}
	}))
	defer srv.Close()

	_, err := NewHTTPRecorder(srv.URL, "reject", "c").RecordSettlement(context.Background(), "m1", "a_steals", "a", "b")
	assert.ErrorIs(t, err, ErrRejected)

	_, err = NewHTTPRecorder(srv.URL, "flaky", "c").RecordSettlement(context.Background(), "m1", "a_steals", "a", "b")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)

	_, err = NewHTTPRecorder(srv.URL, "ok", "c").RecordSettlement(context.Background(), "m1", "a_steals", "a", "b")
	assert.Error(t, err)
}

// fakeRecorder fails a configurable number of times before succeeding.
type fakeRecorder struct {
	mu       sync.Mutex
	failures int
	calls    int
	rejected bool
}

func (f *fakeRecorder) RecordSettlement(_ context.Context, matchID, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.rejected {
		return "", ErrRejected
	}
	if f.calls <= f.failures {
		return "", errors.New("temporarily unavailable")
	}
	return "tx-" + matchID, nil
}

func (f *fakeRecorder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestWorkerRecordsAndReportsTxRef(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorded := make(chan string, 1)
	w := NewWorker(&fakeRecorder{}, slog.Disabled, func(matchID, txRef string) {
		recorded <- matchID + "/" + txRef
	})
	go w.Run(ctx)

	w.Enqueue(Job{MatchID: "m1", Outcome: "both_split", AgentA: "a", AgentB: "b"})

	select {
	case got := <-recorded:
		assert.Equal(t, "m1/tx-m1", got)
	case <-time.After(5 * time.Second):
		t.Fatal("settlement never recorded")
	}
}

func TestRetryDelayClampsHighAttempts(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryDelay(1))
	assert.Equal(t, 4*time.Second, retryDelay(2))
	assert.Equal(t, 32*time.Second, retryDelay(5))
	assert.Equal(t, time.Minute, retryDelay(6))
	// Attempt counts past the shift width must still back off at the
	// cap rather than wrapping negative.
	assert.Equal(t, time.Minute, retryDelay(34))
	assert.Equal(t, time.Minute, retryDelay(100))
}

func TestWorkerBacksOffAtHighAttemptCounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fakeRecorder{failures: 1 << 30}
	w := NewWorker(rec, slog.Disabled, nil)

	w.process(ctx, Job{MatchID: "m1", attempt: 33})

	// The retry is parked for a full minute; an immediate requeue here
	// would mean the doubling wrapped around.
	select {
	case j := <-w.jobs:
		t.Fatalf("job requeued immediately (attempt=%d)", j.attempt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerDropsRejectedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fakeRecorder{rejected: true}
	w := NewWorker(rec, slog.Disabled, func(string, string) {
		t.Error("rejected settlement must not report a tx ref")
	})
	go w.Run(ctx)

	w.Enqueue(Job{MatchID: "m1"})

	require.Eventually(t, func() bool { return rec.callCount() == 1 },
		5*time.Second, 10*time.Millisecond)
	// No retry follows a rejection.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.callCount())
}
