package wire

// --- inbound payloads ---

// AuthVerifyPayload answers an AUTH_CHALLENGE. The pubkey is the 33-byte
// compressed secp256k1 key, hex encoded; the signature is a schnorr
// signature over blake256(nonce), hex encoded.
type AuthVerifyPayload struct {
	ChallengeID string `json:"challenge_id"`
	PubKey      string `json:"pubkey"`
	Signature   string `json:"signature"`
}

type NegotiationSayPayload struct {
	MatchID string `json:"match_id"`
	Text    string `json:"text"`
	Ready   bool   `json:"ready,omitempty"`
}

type SubmitCommitmentPayload struct {
	MatchID    string `json:"match_id"`
	CommitHash string `json:"commit_hash"`
}

type SubmitRevealPayload struct {
	MatchID string `json:"match_id"`
	Choice  uint8  `json:"choice"`
	Nonce   string `json:"nonce"`
}

type PlaceBetPayload struct {
	MatchID string `json:"match_id"`
	Outcome string `json:"outcome"`
	Amount  int64  `json:"amount"`
}

// --- outbound payloads ---

type AuthChallengePayload struct {
	ChallengeID string `json:"challenge_id"`
	Nonce       string `json:"nonce"`
	ExpiresAt   int64  `json:"expires_at"`
}

type AuthSuccessPayload struct {
	Address string `json:"address"`
}

type AuthFailedPayload struct {
	Reason string `json:"reason"`
}

type QueueJoinedPayload struct {
	Address  string `json:"address"`
	Position int    `json:"position"`
}

type QueueUpdatePayload struct {
	Size      int      `json:"size"`
	Addresses []string `json:"addresses"`
}

type MatchStartedPayload struct {
	MatchID      string `json:"match_id"`
	TournamentID string `json:"tournament_id,omitempty"`
	AgentA       string `json:"agent_a"`
	AgentB       string `json:"agent_b"`
	Phase        string `json:"phase"`
	Deadline     int64  `json:"deadline"`
}

type NegotiationMessagePayload struct {
	MatchID string `json:"match_id"`
	From    string `json:"from"`
	Text    string `json:"text"`
	SentAt  int64  `json:"sent_at"`
}

type ChoicePhaseStartedPayload struct {
	MatchID  string `json:"match_id"`
	Deadline int64  `json:"deadline"`
}

// SignChoicePayload is sent to each agent individually when the choice
// phase opens, prompting it to commit.
type SignChoicePayload struct {
	MatchID  string `json:"match_id"`
	Address  string `json:"address"`
	Deadline int64  `json:"deadline"`
}

type ChoiceLockedPayload struct {
	MatchID string `json:"match_id"`
	Address string `json:"address"`
}

type ChoiceAcceptedPayload struct {
	MatchID string `json:"match_id"`
	Address string `json:"address"`
}

type ChoicesRevealedPayload struct {
	MatchID string `json:"match_id"`
	ChoiceA uint8  `json:"choice_a"`
	ChoiceB uint8  `json:"choice_b"`
	Outcome string `json:"outcome"`
	PointsA int    `json:"points_a"`
	PointsB int    `json:"points_b"`
}

type ChoiceTimeoutPayload struct {
	MatchID   string   `json:"match_id"`
	Forfeited []string `json:"forfeited"`
}

type MatchConfirmedPayload struct {
	MatchID string `json:"match_id"`
	Outcome string `json:"outcome"`
	PointsA int    `json:"points_a"`
	PointsB int    `json:"points_b"`
	AgentA  string `json:"agent_a"`
	AgentB  string `json:"agent_b"`
}

type TournamentCreatedPayload struct {
	TournamentID string   `json:"tournament_id"`
	Players      []string `json:"players"`
	TotalRounds  int      `json:"total_rounds"`
}

type TournamentStartedPayload struct {
	TournamentID string `json:"tournament_id"`
	TotalRounds  int    `json:"total_rounds"`
}

type TournamentRoundStartedPayload struct {
	TournamentID string     `json:"tournament_id"`
	Round        int        `json:"round"`
	Pairings     [][]string `json:"pairings"`
	Byes         []string   `json:"byes,omitempty"`
}

type StandingEntry struct {
	Address  string  `json:"address"`
	Points   int     `json:"points"`
	Tiebreak float64 `json:"tiebreak"`
}

type TournamentUpdatePayload struct {
	TournamentID string          `json:"tournament_id"`
	Round        int             `json:"round"`
	Standings    []StandingEntry `json:"standings"`
}

type TournamentRoundCompletePayload struct {
	TournamentID string `json:"tournament_id"`
	Round        int    `json:"round"`
}

type TournamentCompletePayload struct {
	TournamentID string          `json:"tournament_id"`
	Ranking      []StandingEntry `json:"ranking"`
}

type TournamentPlayerJoinedPayload struct {
	TournamentID string `json:"tournament_id"`
	Address      string `json:"address"`
}

type TournamentQueueJoinedPayload struct {
	Address  string `json:"address"`
	Position int    `json:"position"`
	Capacity int    `json:"capacity"`
}

type TournamentQueueUpdatePayload struct {
	Size      int      `json:"size"`
	Capacity  int      `json:"capacity"`
	Addresses []string `json:"addresses"`
	ClosesAt  int64    `json:"closes_at"`
	Cancelled bool     `json:"cancelled,omitempty"`
}

type TournamentInvitePayload struct {
	TournamentID string `json:"tournament_id"`
	Address      string `json:"address"`
	Round        int    `json:"round"`
	Opponent     string `json:"opponent,omitempty"`
	Bye          bool   `json:"bye,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
