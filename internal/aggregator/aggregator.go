// Package aggregator implements the VerificationAggregator contract: it
// composes the ledger's local validity with the registry's current issuer
// authorization into a single externally trusted verdict, and tracks
// verification usage counters.
package aggregator

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/events"
	"github.com/Atmajo/credora-server/internal/ledger"
)

// ContractName identifies this contract in the event log.
const ContractName = "VerificationAggregator"

// Verdict messages, in strict precedence order.
const (
	MsgNotFound     = "Credential does not exist"
	MsgRevoked      = "Credential has been revoked by issuer"
	MsgExpired      = "Credential has expired"
	MsgDeauthorized = "Issuing institution is no longer authorized"
	MsgValid        = "Credential is valid and verified"
)

// Result is the verdict for one token.
type Result struct {
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
}

// LedgerReader is the ledger surface the aggregator consumes: a tagged lookup
// instead of error-driven control flow.
type LedgerReader interface {
	Lookup(tokenID uint64) ledger.LookupResult
}

// AuthorityReader is the registry surface the aggregator consumes.
type AuthorityReader interface {
	IsAuthorizedIssuer(addr common.Address) bool
}

// Aggregator is the contract state: the composition logic plus monotonic
// verification counters.
type Aggregator struct {
	ledger    LedgerReader
	authority AuthorityReader

	mu          sync.RWMutex
	perToken    map[uint64]uint64
	perVerifier map[common.Address]uint64
	total       uint64

	emitter events.Emitter
	now     func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithEmitter attaches an event emitter.
func WithEmitter(e events.Emitter) Option {
	return func(a *Aggregator) {
		a.emitter = e
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// New deploys an aggregator over the given ledger and registry.
func New(ledgerReader LedgerReader, authority AuthorityReader, opts ...Option) *Aggregator {
	a := &Aggregator{
		ledger:      ledgerReader,
		authority:   authority,
		perToken:    make(map[uint64]uint64),
		perVerifier: make(map[common.Address]uint64),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// VerifyCredentialDetailed produces the full verdict for tokenID. Counters
// increment first, unconditionally: a lookup of a never-minted token still
// counts globally and against the verifier (attributed to the verifier, not
// the token).
func (a *Aggregator) VerifyCredentialDetailed(verifier common.Address, tokenID uint64) Result {
	a.count(verifier, tokenID)

	result := a.evaluate(tokenID)
	a.emit("CredentialVerified", map[string]string{
		"token_id": strconv.FormatUint(tokenID, 10),
		"verifier": verifier.Hex(),
		"is_valid": strconv.FormatBool(result.IsValid),
	})
	return result
}

// BatchVerifyCredentials runs the detailed path once per id, preserving input
// order. Every id is attempted independently; nonexistent tokens produce
// not-found verdicts rather than aborting the batch. One aggregate event is
// emitted afterward.
func (a *Aggregator) BatchVerifyCredentials(verifier common.Address, tokenIDs []uint64) []Result {
	results := make([]Result, len(tokenIDs))
	ids := make([]string, len(tokenIDs))
	for i, tokenID := range tokenIDs {
		a.count(verifier, tokenID)
		results[i] = a.evaluate(tokenID)
		ids[i] = strconv.FormatUint(tokenID, 10)
	}
	a.emit("BatchVerificationCompleted", map[string]string{
		"verifier":  verifier.Hex(),
		"token_ids": strings.Join(ids, ","),
		"count":     strconv.Itoa(len(tokenIDs)),
	})
	return results
}

// QuickVerify is the read-only fast path: ledger validity AND current issuer
// authorization. It never errors, increments no counters, and emits no events.
func (a *Aggregator) QuickVerify(tokenID uint64) bool {
	lookup := a.ledger.Lookup(tokenID)
	if !lookup.Found {
		return false
	}
	cred := lookup.Credential
	if cred.Revoked || cred.ExpiredAt(a.now()) {
		return false
	}
	return a.authority.IsAuthorizedIssuer(cred.Issuer)
}

// QuickBatchVerify maps QuickVerify over tokenIDs, order-preserving.
func (a *Aggregator) QuickBatchVerify(tokenIDs []uint64) []bool {
	out := make([]bool, len(tokenIDs))
	for i, id := range tokenIDs {
		out[i] = a.QuickVerify(id)
	}
	return out
}

// VerifyOwnership reports whether claimedOwner currently owns tokenID.
// False on any failure, never errors.
func (a *Aggregator) VerifyOwnership(tokenID uint64, claimedOwner common.Address) bool {
	lookup := a.ledger.Lookup(tokenID)
	return lookup.Found && lookup.Owner == claimedOwner
}

// VerifyIssuer reports whether institution issued tokenID. False on any
// failure, never errors.
func (a *Aggregator) VerifyIssuer(tokenID uint64, institution common.Address) bool {
	lookup := a.ledger.Lookup(tokenID)
	return lookup.Found && lookup.Credential.Issuer == institution
}

// GetCredentialVerificationCount returns the per-token counter.
func (a *Aggregator) GetCredentialVerificationCount(tokenID uint64) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.perToken[tokenID]
}

// GetVerifierCount returns the per-verifier counter.
func (a *Aggregator) GetVerifierCount(verifier common.Address) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.perVerifier[verifier]
}

// GetTotalVerifications returns the global counter.
func (a *Aggregator) GetTotalVerifications() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.total
}

// count increments the monotonic counters. The per-token counter only moves
// for minted tokens; the attempt itself always counts globally and against
// the verifier.
func (a *Aggregator) count(verifier common.Address, tokenID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.perVerifier[verifier]++
	if a.ledger.Lookup(tokenID).Found {
		a.perToken[tokenID]++
	}
}

// evaluate applies the strict invalidity precedence: revoked before expired
// before issuer-deauthorized before valid.
func (a *Aggregator) evaluate(tokenID uint64) Result {
	lookup := a.ledger.Lookup(tokenID)
	if !lookup.Found {
		return Result{TokenID: tokenID, Message: MsgNotFound}
	}

	cred := lookup.Credential
	expired := cred.ExpiredAt(a.now())
	authorized := a.authority.IsAuthorizedIssuer(cred.Issuer)

	result := Result{
		TokenID:          tokenID,
		Exists:           true,
		Revoked:          cred.Revoked,
		Expired:          expired,
		IssuerAuthorized: authorized,
		Issuer:           cred.Issuer,
		Recipient:        cred.Recipient,
		Owner:            lookup.Owner,
		Type:             cred.Type,
		InstitutionName:  cred.InstitutionName,
		IssuedAt:         cred.IssuedAt,
		ExpiresAt:        cred.ExpiresAt,
	}

	switch {
	case cred.Revoked:
		result.Message = MsgRevoked
	case expired:
		result.Message = MsgExpired
	case !authorized:
		result.Message = MsgDeauthorized
	default:
		// Defensive AND with the ledger's own flag, in case ledger and
		// aggregator validity logic ever diverge.
		result.IsValid = !cred.Revoked && !expired
		result.Message = MsgValid
	}
	return result
}

func (a *Aggregator) emit(name string, attrs map[string]string) {
	if a.emitter != nil {
		a.emitter.Emit(ContractName, name, attrs)
	}
}
