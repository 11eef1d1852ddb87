package arena

import "errors"

var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrNotInMatch          = errors.New("agent is not part of this match")
	ErrWrongPhase          = errors.New("action invalid for current match phase")
	ErrDuplicateCommitment = errors.New("commitment already submitted")
	ErrNoCommitment        = errors.New("no commitment on record")
	ErrAlreadyRevealed     = errors.New("choice already revealed")
	ErrInvalidChoice       = errors.New("invalid choice")
	ErrInvalidCommitment   = errors.New("invalid commitment hash")
	ErrAgentBusy           = errors.New("agent already in an active match")

	ErrUnknownOutcome = errors.New("unknown outcome")
	ErrPoolNotFound   = errors.New("betting pool not found")
	ErrPoolNotOpen    = errors.New("betting pool is not open")
	ErrPoolNotLocked  = errors.New("betting pool is not locked")
	ErrInvalidStake   = errors.New("stake must be positive")

	ErrTournamentNotFound = errors.New("tournament not found")
	ErrRoundInProgress    = errors.New("current round is not complete")
)
