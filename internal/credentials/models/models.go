package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/ledger"
)

// CredentialRecord is the off-chain shadow of one minted credential. It is
// written only after the minting transaction confirms, so it never claims
// more than the chain does. Chain state stays authoritative; the record adds
// queryability and off-chain bookkeeping.
type CredentialRecord struct {
	TokenID           uint64
	Issuer            common.Address
	Recipient         common.Address
	Type              ledger.CredentialType
	InstitutionName   string
	IssuedAt          time.Time
	ExpiresAt         int64
	MetadataRef       string
	TokenURI          string
	TxHash            common.Hash
	BlockNumber       uint64
	Revoked           bool
	RevokedAt         *time.Time
	VerificationCount uint64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IssueRequest carries the inputs for one mint, with the raw metadata payload
// still unstored.
type IssueRequest struct {
	Recipient       common.Address
	Type            ledger.CredentialType
	InstitutionName string
	ExpiresAt       int64
	Metadata        []byte
	TokenURI        string
}

// BatchIssueRequest carries the parallel inputs for one batch mint. All
// slices must be the same length; the institution name and expiry apply to
// every credential in the batch.
type BatchIssueRequest struct {
	Recipients      []common.Address
	Types           []ledger.CredentialType
	InstitutionName string
	ExpiresAt       int64
	Metadata        [][]byte
	TokenURIs       []string
}

// BatchIssueReceipt is the service-level result of a batch mint attempt. The
// batch is atomic on-chain: either every token minted or none did.
type BatchIssueReceipt struct {
	TokenIDs     []uint64
	TxHash       common.Hash
	BlockNumber  uint64
	Status       string
	MetadataRefs []string
	RevertReason string
}

// IssueReceipt is the service-level result of a mint attempt.
type IssueReceipt struct {
	TokenID     uint64
	TxHash      common.Hash
	BlockNumber uint64
	Status      string
	MetadataRef string
	// RevertReason is set when Status is "failed".
	RevertReason string
}

// Verification is an aggregator verdict enriched with advisory shadow data.
// The on-chain fields are authoritative; Shadow may be nil when no record
// exists, and a disagreement is reported, never resolved in the shadow's
// favor.
type Verification struct {
	TokenID          uint64
	Exists           bool
	IsValid          bool
	Revoked          bool
	Expired          bool
	IssuerAuthorized bool
	Issuer           common.Address
	Recipient        common.Address
	Owner            common.Address
	Type             ledger.CredentialType
	InstitutionName  string
	IssuedAt         time.Time
	ExpiresAt        int64
	Message          string
	Shadow           *ShadowInfo
}

// ShadowInfo is the advisory off-chain slice of a verification response.
type ShadowInfo struct {
	TxHash            common.Hash
	BlockNumber       uint64
	TokenURI          string
	VerificationCount uint64
	// Stale is set when the shadow record disagrees with chain state, for
	// example a revocation confirmed on-chain that the shadow missed.
	Stale bool
}
