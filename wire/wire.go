// Package wire defines the typed message schema spoken on the realtime
// channel. Every frame is an Envelope carrying one of the message types
// below; payload shapes live in payloads.go.
package wire

import (
	"encoding/json"
	"time"
)

// Role identifies what a connection is allowed to do on the channel.
type Role string

const (
	RoleAgent     Role = "agent"
	RoleSpectator Role = "spectator"
	RoleBettor    Role = "bettor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleSpectator, RoleBettor:
		return true
	}
	return false
}

// Envelope wraps every inbound and outbound frame.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope marshals payload and stamps the frame. A payload that fails
// to marshal yields an envelope with an empty payload; callers pass plain
// structs so this does not happen outside of programmer error.
func NewEnvelope(msgType string, payload any) Envelope {
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			env.Payload = b
		}
	}
	return env
}

// Inbound message types (client -> server).
const (
	MsgAuthVerify          = "AUTH_VERIFY"
	MsgJoinQueue           = "JOIN_QUEUE"
	MsgLeaveQueue          = "LEAVE_QUEUE"
	MsgNegotiationSay      = "NEGOTIATION_SAY"
	MsgSubmitCommitment    = "SUBMIT_COMMITMENT"
	MsgSubmitReveal        = "SUBMIT_REVEAL"
	MsgPlaceBet            = "PLACE_BET"
	MsgJoinTournamentQueue = "JOIN_TOURNAMENT_QUEUE"
	MsgRequestChallenge    = "REQUEST_CHALLENGE"
)

// Outbound event types (server -> client). This set is exhaustive; the
// engine emits nothing that is not listed here.
const (
	EvtAuthChallenge           = "AUTH_CHALLENGE"
	EvtAuthSuccess             = "AUTH_SUCCESS"
	EvtAuthFailed              = "AUTH_FAILED"
	EvtQueueJoined             = "QUEUE_JOINED"
	EvtQueueUpdate             = "QUEUE_UPDATE"
	EvtMatchStarted            = "MATCH_STARTED"
	EvtNegotiationMessage      = "NEGOTIATION_MESSAGE"
	EvtChoicePhaseStarted      = "CHOICE_PHASE_STARTED"
	EvtSignChoice              = "SIGN_CHOICE"
	EvtChoiceLocked            = "CHOICE_LOCKED"
	EvtChoiceAccepted          = "CHOICE_ACCEPTED"
	EvtChoicesRevealed         = "CHOICES_REVEALED"
	EvtChoiceTimeout           = "CHOICE_TIMEOUT"
	EvtMatchConfirmed          = "MATCH_CONFIRMED"
	EvtTournamentCreated       = "TOURNAMENT_CREATED"
	EvtTournamentStarted       = "TOURNAMENT_STARTED"
	EvtTournamentRoundStarted  = "TOURNAMENT_ROUND_STARTED"
	EvtTournamentUpdate        = "TOURNAMENT_UPDATE"
	EvtTournamentRoundComplete = "TOURNAMENT_ROUND_COMPLETE"
	EvtTournamentComplete      = "TOURNAMENT_COMPLETE"
	EvtTournamentPlayerJoined  = "TOURNAMENT_PLAYER_JOINED"
	EvtTournamentQueueUpdate   = "TOURNAMENT_QUEUE_UPDATE"
	EvtTournamentQueueJoined   = "TOURNAMENT_QUEUE_JOINED"
	EvtTournamentInvite        = "TOURNAMENT_INVITE"
	EvtError                   = "ERROR"
)
