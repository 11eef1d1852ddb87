package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRejected marks a settlement the collaborator refused outright; the
// retry worker will not requeue it.
var ErrRejected = errors.New("settlement rejected by ledger")

// Recorder records a completed match's outcome on the external ledger
// and returns the transaction reference the ledger assigned. The
// collaborator deduplicates on matchID, so recording the same match
// twice is harmless.
type Recorder interface {
	RecordSettlement(ctx context.Context, matchID, outcome, addrA, addrB string) (string, error)
}

// settlementRequest is the body POSTed to the ledger endpoint.
type settlementRequest struct {
	MatchID string `json:"match_id"`
	Outcome string `json:"outcome"`
	AgentA  string `json:"agent_a"`
	AgentB  string `json:"agent_b"`
}

type settlementResponse struct {
	TxRef string `json:"tx_ref"`
}

// HTTPRecorder talks to the ledger collaborator over plain HTTP. The
// contract address and operator credential ride as headers on every
// request.
type HTTPRecorder struct {
	endpoint   string
	contract   string
	credential string
	client     *http.Client
}

func NewHTTPRecorder(endpoint, contract, credential string) *HTTPRecorder {
	return &HTTPRecorder{
		endpoint:   endpoint,
		contract:   contract,
		credential: credential,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPRecorder) RecordSettlement(ctx context.Context, matchID, outcome, addrA, addrB string) (string, error) {
	body, err := json.Marshal(settlementRequest{
		MatchID: matchID,
		Outcome: outcome,
		AgentA:  addrA,
		AgentB:  addrB,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Contract-Address", r.contract)
	req.Header.Set("X-Operator-Credential", r.credential)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return "", fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}

	var sr settlementResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&sr); err != nil {
		return "", fmt.Errorf("malformed ledger response: %w", err)
	}
	if sr.TxRef == "" {
		return "", errors.New("ledger response missing tx_ref")
	}
	return sr.TxRef, nil
}
