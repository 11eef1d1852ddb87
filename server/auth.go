package server

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/decred/slog"
	"github.com/vctt94/bisonbotkit/utils"

	"splitsteal/arena"
	"splitsteal/wire"
)

// DefaultChallengeTTL is how long an issued challenge stays answerable.
const DefaultChallengeTTL = 60 * time.Second

var (
	ErrChallengeUnknown = errors.New("unknown or already used challenge")
	ErrChallengeExpired = errors.New("challenge expired")
	ErrBadPubKey        = errors.New("malformed public key")
	ErrBadSignature     = errors.New("signature does not verify")
)

type challenge struct {
	id      string
	nonce   []byte
	connID  string
	expires time.Time
}

// AuthManager issues one-time challenges and verifies signed responses,
// binding a connection to the wallet address derived from the signing
// key. Challenges are consumed on the first verification attempt no
// matter the outcome, so a replayed challenge id always fails.
type AuthManager struct {
	mu         sync.Mutex
	challenges map[string]*challenge
	ttl        time.Duration
	log        slog.Logger
}

func NewAuthManager(log slog.Logger, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &AuthManager{
		challenges: make(map[string]*challenge),
		ttl:        ttl,
		log:        log,
	}
}

// GenerateChallenge issues a fresh single-use challenge for a connection.
func (am *AuthManager) GenerateChallenge(connID string) (wire.AuthChallengePayload, error) {
	id, err := utils.GenerateRandomString(16)
	if err != nil {
		return wire.AuthChallengePayload{}, err
	}
	nonce := make([]byte, 32)
	if _, err := crand.Read(nonce); err != nil {
		return wire.AuthChallengePayload{}, err
	}

	ch := &challenge{
		id:      id,
		nonce:   nonce,
		connID:  connID,
		expires: time.Now().Add(am.ttl),
	}
	am.mu.Lock()
	am.challenges[id] = ch
	am.mu.Unlock()

	return wire.AuthChallengePayload{
		ChallengeID: id,
		Nonce:       hex.EncodeToString(nonce),
		ExpiresAt:   ch.expires.UnixMilli(),
	}, nil
}

// Verify consumes the challenge and checks the schnorr signature over
// blake256(nonce) against the submitted compressed pubkey. On success it
// returns the derived address; the caller binds it to the connection.
func (am *AuthManager) Verify(challengeID, connID, pubKeyHex, sigHex string) (string, error) {
	am.mu.Lock()
	ch := am.challenges[challengeID]
	// Single use: gone after the first attempt, pass or fail.
	delete(am.challenges, challengeID)
	am.mu.Unlock()

	if ch == nil || ch.connID != connID {
		return "", ErrChallengeUnknown
	}
	if time.Now().After(ch.expires) {
		return "", ErrChallengeExpired
	}

	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", ErrBadPubKey
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return "", ErrBadPubKey
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", ErrBadSignature
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return "", ErrBadSignature
	}

	digest := blake256.Sum256(ch.nonce)
	if !sig.Verify(digest[:], pub) {
		return "", ErrBadSignature
	}

	addr := arena.AddressFromPubKey(pub)
	am.log.Debugf("auth: challenge %s verified for %s", challengeID, addr)
	return addr, nil
}

// SweepExpired drops challenges past their deadline. Called periodically
// so abandoned connection attempts do not accumulate.
func (am *AuthManager) SweepExpired() {
	now := time.Now()
	am.mu.Lock()
	for id, ch := range am.challenges {
		if now.After(ch.expires) {
			delete(am.challenges, id)
		}
	}
	am.mu.Unlock()
}
