package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the shadow view of an institution's on-chain standing. A shadow
// status never runs ahead of confirmed chain state: an unconfirmed
// registration stays StatusPending until the transaction lands.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRegistered Status = "registered"
	StatusVerified   Status = "verified"
	StatusRevoked    Status = "revoked"
)

// InstitutionRecord is the off-chain shadow of one institution.
type InstitutionRecord struct {
	Address        common.Address
	Name           string
	Website        string
	Email          string
	DocumentHash   string
	Status         Status
	RegisterTxHash common.Hash
	VerifyTxHash   common.Hash
	RegisteredAt   *time.Time
	VerifiedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OnboardRequest carries the inputs for registering and verifying an
// institution in one workflow.
type OnboardRequest struct {
	Address      common.Address
	Name         string
	Website      string
	Email        string
	DocumentHash string
}

// OnboardResult reports how far the onboarding workflow got. Status
// "verified" means both steps confirmed; "pending" means a step timed out
// and PendingTxHash identifies the transaction to poll.
type OnboardResult struct {
	Address       common.Address
	Status        Status
	PendingTxHash common.Hash
}
