package lifecycle

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind is the target operation of a submitted transaction.
type Kind string

const (
	KindRegister Kind = "register"
	KindVerify   Kind = "verify"
	KindRevoke   Kind = "revoke"
	KindIssue    Kind = "issue"
	KindTransfer Kind = "transfer"
)

// Status is the lifecycle state of a submitted transaction.
//
// Transitions are one-way: submitted moves to exactly one of confirmed,
// failed, or timed_out. A timed_out record may later be upgraded to confirmed
// or failed by an out-of-band status check, because timed_out means "outcome
// unknown at the deadline", not "outcome decided". Confirmed and failed are
// terminal.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusSubmitted:
		return next == StatusConfirmed || next == StatusFailed || next == StatusTimedOut
	case StatusTimedOut:
		return next == StatusConfirmed || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// PendingTransaction is the off-chain record of one submitted operation,
// keyed by transaction hash.
type PendingTransaction struct {
	Hash        common.Hash
	Kind        Kind
	From        common.Address
	Status      Status
	GasEstimate uint64
	SubmittedAt time.Time
	Deadline    time.Time
	// BlockNumber is set once a receipt is observed.
	BlockNumber uint64
	// Reason carries the revert reason for failed transactions.
	Reason string
}
