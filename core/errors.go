package core

import (
	"github.com/pkg/errors"
)

// Every precondition violation is a distinct sentinel so callers can branch
// with errors.Is. All of them reject the whole operation: nothing is
// persisted and no tokens move when one of these is returned.
var (
	// authorization
	ErrNotOwner           = errors.New("not an owner")
	ErrProposerCannotVote = errors.New("proposer cannot vote on own proposal")

	// state
	ErrPaused           = errors.New("dao is paused")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrMultiSigNotFound = errors.New("multisig proposal not found")
	ErrAlreadyVoted     = errors.New("already voted")
	ErrAlreadyExecuted  = errors.New("proposal already executed")
	ErrMultiSigExecuted = errors.New("multisig proposal already executed")
	ErrAlreadyApproved  = errors.New("already approved")
	ErrVotingClosed     = errors.New("voting period ended")
	ErrVotingNotEnded   = errors.New("voting period not ended")
	ErrNotExecuted      = errors.New("proposal not executed yet")
	ErrNotRejected      = errors.New("proposal was not rejected")
	ErrAlreadyRefunded  = errors.New("investments already refunded")

	// value
	ErrInvalidFundingGoal     = errors.New("invalid funding goal")
	ErrEmptyMetadata          = errors.New("description, project name and url are required")
	ErrInvestmentTooSmall     = errors.New("investment below minimum voting tokens")
	ErrInsufficientTokens     = errors.New("insufficient tokens to propose")
	ErrInsufficientBalance    = errors.New("insufficient token balance")
	ErrInsufficientAllowance  = errors.New("insufficient token allowance")
	ErrInsufficientDAOBalance = errors.New("insufficient dao balance")
	ErrInvalidAmount          = errors.New("invalid amount")

	// multisig payload
	ErrUnknownAction       = errors.New("unknown multisig action")
	ErrUnknownParameter    = errors.New("unknown governance parameter")
	ErrParameterOutOfRange = errors.New("parameter value out of range")
	ErrInvalidTarget       = errors.New("invalid target address")
)
