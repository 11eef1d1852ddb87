// Package client is the agent-side SDK for the realtime channel: it
// dials the server, answers auth challenges with the agent's key, and
// wraps the commit-reveal exchange so a strategy only ever decides
// split or steal.
package client

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/decred/slog"
	"github.com/gorilla/websocket"

	"splitsteal/arena"
	"splitsteal/wire"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// nextBackoff doubles the reconnect delay up to the cap.
func nextBackoff(cur time.Duration) time.Duration {
	if cur <= 0 {
		return initialBackoff
	}
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// Handler receives every event frame the server pushes, after the
// client has handled authentication internally.
type Handler func(env wire.Envelope)

// Config configures a Client.
type Config struct {
	URL     string // ws endpoint, e.g. ws://host:8080/ws
	Key     *secp256k1.PrivateKey
	Log     slog.Logger
	Handler Handler
}

// Client maintains one agent connection, reconnecting with doubling
// backoff when it drops. Commit secrets are held until the matching
// reveal is sent.
type Client struct {
	url     string
	key     *secp256k1.PrivateKey
	log     slog.Logger
	handler Handler

	mu      sync.Mutex
	sock    *websocket.Conn
	secrets map[string]commitSecret // matchID -> pending reveal
}

type commitSecret struct {
	choice arena.Choice
	nonce  []byte
}

func New(cfg Config) (*Client, error) {
	if cfg.Key == nil {
		return nil, errors.New("missing private key")
	}
	if cfg.URL == "" {
		return nil, errors.New("missing server url")
	}
	return &Client{
		url:     cfg.URL,
		key:     cfg.Key,
		log:     cfg.Log,
		handler: cfg.Handler,
		secrets: make(map[string]commitSecret),
	}, nil
}

// Address returns the wallet address this client authenticates as.
func (c *Client) Address() string {
	return arena.AddressFromPubKey(c.key.PubKey())
}

// Run dials and serves the connection until ctx is cancelled,
// redialling on failure with doubling backoff. The first successful
// read resets the backoff.
func (c *Client) Run(ctx context.Context) error {
	backoff := time.Duration(0)
	for {
		if err := c.dialAndServe(ctx, &backoff); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
		c.log.Infof("reconnecting in %s", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (c *Client) dialAndServe(ctx context.Context, backoff *time.Duration) error {
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, c.url+"?role=agent", nil)
	if err != nil {
		c.log.Warnf("dial %s: %v", c.url, err)
		return err
	}
	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sock = nil
		c.mu.Unlock()
		sock.Close()
	}()

	c.log.Infof("connected to %s", c.url)
	for {
		var env wire.Envelope
		if err := sock.ReadJSON(&env); err != nil {
			c.log.Warnf("connection lost: %v", err)
			return err
		}
		*backoff = 0
		c.handleEvent(env)
	}
}

// handleEvent answers auth challenges itself and forwards everything to
// the registered handler.
func (c *Client) handleEvent(env wire.Envelope) {
	if env.Type == wire.EvtAuthChallenge {
		var ch wire.AuthChallengePayload
		if err := json.Unmarshal(env.Payload, &ch); err != nil {
			c.log.Errorf("malformed challenge: %v", err)
			return
		}
		if err := c.answerChallenge(ch); err != nil {
			c.log.Errorf("answer challenge: %v", err)
		}
	}
	if c.handler != nil {
		c.handler(env)
	}
}

func (c *Client) answerChallenge(ch wire.AuthChallengePayload) error {
	nonce, err := hex.DecodeString(ch.Nonce)
	if err != nil {
		return err
	}
	digest := blake256.Sum256(nonce)
	sig, err := schnorr.Sign(c.key, digest[:])
	if err != nil {
		return err
	}
	return c.send(wire.MsgAuthVerify, wire.AuthVerifyPayload{
		ChallengeID: ch.ChallengeID,
		PubKey:      hex.EncodeToString(c.key.PubKey().SerializeCompressed()),
		Signature:   hex.EncodeToString(sig.Serialize()),
	})
}

func (c *Client) send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return errors.New("not connected")
	}
	return c.sock.WriteJSON(wire.NewEnvelope(msgType, payload))
}

// JoinQueue enters the quick-match queue.
func (c *Client) JoinQueue() error { return c.send(wire.MsgJoinQueue, nil) }

// LeaveQueue leaves the quick-match queue.
func (c *Client) LeaveQueue() error { return c.send(wire.MsgLeaveQueue, nil) }

// JoinTournamentQueue registers for the next tournament cohort.
func (c *Client) JoinTournamentQueue() error { return c.send(wire.MsgJoinTournamentQueue, nil) }

// Say sends negotiation text; ready signals the agent is done talking.
func (c *Client) Say(matchID, text string, ready bool) error {
	return c.send(wire.MsgNegotiationSay, wire.NegotiationSayPayload{
		MatchID: matchID,
		Text:    text,
		Ready:   ready,
	})
}

// Commit locks in a choice: a fresh nonce is drawn, the commitment hash
// submitted, and the (choice, nonce) pair retained for the reveal.
func (c *Client) Commit(matchID string, choice arena.Choice) error {
	if !choice.Valid() {
		return arena.ErrInvalidChoice
	}
	nonce := make([]byte, 32)
	if _, err := crand.Read(nonce); err != nil {
		return err
	}
	c.mu.Lock()
	c.secrets[matchID] = commitSecret{choice: choice, nonce: nonce}
	c.mu.Unlock()

	return c.send(wire.MsgSubmitCommitment, wire.SubmitCommitmentPayload{
		MatchID:    matchID,
		CommitHash: arena.CommitHash(choice, nonce),
	})
}

// Reveal discloses the retained (choice, nonce) pair for a match.
func (c *Client) Reveal(matchID string) error {
	c.mu.Lock()
	sec, ok := c.secrets[matchID]
	delete(c.secrets, matchID)
	c.mu.Unlock()
	if !ok {
		return errors.New("no pending commitment for match " + matchID)
	}
	return c.send(wire.MsgSubmitReveal, wire.SubmitRevealPayload{
		MatchID: matchID,
		Choice:  uint8(sec.choice),
		Nonce:   hex.EncodeToString(sec.nonce),
	})
}
