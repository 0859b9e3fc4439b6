// Package ledger implements the CredentialLedger contract: an append-only
// store of credential tokens with sequential ids, single-owner tracking, and
// issuer-gated minting and revocation. The ledger reports its own local
// validity only; whether the issuer is still authorized is the aggregator's
// concern.
package ledger

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/events"
)

// ContractName identifies this contract in the event log.
const ContractName = "CredentialLedger"

// Revert reasons.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotAuthorizedIssuer = errors.New("caller is not an authorized issuer")
	ErrNotFound            = errors.New("credential not found")
	ErrNotIssuer           = errors.New("caller is not the original issuer")
	ErrAlreadyRevoked      = errors.New("credential already revoked")
	ErrNotOwner            = errors.New("caller does not own the credential")
	ErrLengthMismatch      = errors.New("batch arrays length mismatch")
)

// CredentialType enumerates the supported credential kinds.
type CredentialType string

const (
	TypeDegree      CredentialType = "Degree"
	TypeCertificate CredentialType = "Certificate"
	TypeCourse      CredentialType = "Course"
	TypeWorkshop    CredentialType = "Workshop"
	TypeLicense     CredentialType = "License"
)

// ParseCredentialType validates a wire-level credential type.
func ParseCredentialType(s string) (CredentialType, error) {
	switch CredentialType(s) {
	case TypeDegree, TypeCertificate, TypeCourse, TypeWorkshop, TypeLicense:
		return CredentialType(s), nil
	}
	return "", ErrInvalidInput
}

// Credential is one issued token. Revoked is monotonic: once true it never
// resets. ExpiresAt is a unix timestamp; 0 means the credential never expires.
type Credential struct {
	TokenID         uint64
	Issuer          common.Address
	Recipient       common.Address
	Type            CredentialType
	InstitutionName string
	IssuedAt        time.Time
	ExpiresAt       int64
	MetadataRef     string
	Revoked         bool
}

// ExpiredAt reports whether the credential is expired at the given instant.
// A credential is valid through its exact expiry second; only a strictly later
// time expires it. ExpiresAt 0 never expires.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != 0 && now.Unix() > c.ExpiresAt
}

// LocalVerification is the ledger's own view of a credential, without any
// issuer-authorization cross-check.
type LocalVerification struct {
	IsValid         bool
	Issuer          common.Address
	Recipient       common.Address
	Type            CredentialType
	InstitutionName string
	IssuedAt        time.Time
	Expired         bool
	Revoked         bool
}

// LookupResult is the tagged read result consumed by the aggregator: either
// the credential was found, with its record and current owner, or it was
// never minted.
type LookupResult struct {
	Found      bool
	Credential Credential
	Owner      common.Address
}

// IssueParams carries the inputs for one mint.
type IssueParams struct {
	Recipient       common.Address
	Type            CredentialType
	InstitutionName string
	ExpiresAt       int64
	MetadataRef     string
	TokenURI        string
}

// Authority is the registry surface the ledger depends on.
type Authority interface {
	IsAuthorizedIssuer(addr common.Address) bool
	IncrementCredentialCount(issuer common.Address) error
}

// Ledger is the contract state. Mutating methods take the transaction sender
// explicitly; the chain backend serializes their execution.
type Ledger struct {
	mu        sync.RWMutex
	authority Authority
	nextID    uint64
	creds     map[uint64]*Credential
	owners    map[uint64]common.Address
	byOwner   map[common.Address][]uint64
	tokenURIs map[uint64]string

	emitter events.Emitter
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithEmitter attaches an event emitter.
func WithEmitter(e events.Emitter) Option {
	return func(l *Ledger) {
		l.emitter = e
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New deploys a ledger bound to the given registry.
func New(authority Authority, opts ...Option) *Ledger {
	l := &Ledger{
		authority: authority,
		creds:     make(map[uint64]*Credential),
		owners:    make(map[uint64]common.Address),
		byOwner:   make(map[common.Address][]uint64),
		tokenURIs: make(map[uint64]string),
	}
	l.now = time.Now
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IssueCredential mints the next sequential token to params.Recipient. Token
// ids start at 0 and are never reused, even across revocations. The issuer's
// registry counter increments in the same chain call, so both mutations commit
// atomically.
func (l *Ledger) IssueCredential(sender common.Address, params IssueParams) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkIssue(sender, params); err != nil {
		return 0, err
	}
	return l.mint(sender, params)
}

// BatchIssueCredentials mints one credential per recipient, atomically: a
// length mismatch or any failing entry aborts the whole batch before any
// state changes.
func (l *Ledger) BatchIssueCredentials(sender common.Address, recipients []common.Address, types []CredentialType, institutionName string, expiresAt int64, metadataRefs, tokenURIs []string) ([]uint64, error) {
	if len(types) != len(recipients) || len(metadataRefs) != len(recipients) || len(tokenURIs) != len(recipients) {
		return nil, ErrLengthMismatch
	}

	batch := make([]IssueParams, len(recipients))
	for i := range recipients {
		batch[i] = IssueParams{
			Recipient:       recipients[i],
			Type:            types[i],
			InstitutionName: institutionName,
			ExpiresAt:       expiresAt,
			MetadataRef:     metadataRefs[i],
			TokenURI:        tokenURIs[i],
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, params := range batch {
		if err := l.checkIssue(sender, params); err != nil {
			return nil, err
		}
	}

	ids := make([]uint64, 0, len(batch))
	for _, params := range batch {
		id, err := l.mint(sender, params)
		if err != nil {
			// checkIssue covers every mint precondition, so this is
			// unreachable; returning keeps the invariant explicit.
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// checkIssue validates every mint precondition without mutating state.
func (l *Ledger) checkIssue(sender common.Address, params IssueParams) error {
	if !l.authority.IsAuthorizedIssuer(sender) {
		return ErrNotAuthorizedIssuer
	}
	if params.Recipient == (common.Address{}) {
		return ErrInvalidInput
	}
	if _, err := ParseCredentialType(string(params.Type)); err != nil {
		return ErrInvalidInput
	}
	return nil
}

func (l *Ledger) mint(sender common.Address, params IssueParams) (uint64, error) {
	if err := l.authority.IncrementCredentialCount(sender); err != nil {
		return 0, err
	}

	tokenID := l.nextID
	l.nextID++

	l.creds[tokenID] = &Credential{
		TokenID:         tokenID,
		Issuer:          sender,
		Recipient:       params.Recipient,
		Type:            params.Type,
		InstitutionName: params.InstitutionName,
		IssuedAt:        l.now(),
		ExpiresAt:       params.ExpiresAt,
		MetadataRef:     params.MetadataRef,
	}
	l.owners[tokenID] = params.Recipient
	l.byOwner[params.Recipient] = append(l.byOwner[params.Recipient], tokenID)
	if params.TokenURI != "" {
		l.tokenURIs[tokenID] = params.TokenURI
	}

	l.emit("CredentialIssued", map[string]string{
		"token_id":  strconv.FormatUint(tokenID, 10),
		"issuer":    sender.Hex(),
		"recipient": params.Recipient.Hex(),
		"type":      string(params.Type),
	})
	return tokenID, nil
}

// RevokeCredential sets the revoked flag. Only the original issuer may revoke;
// ownership transfers do not move revocation rights. Irreversible.
func (l *Ledger) RevokeCredential(sender common.Address, tokenID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cred, exists := l.creds[tokenID]
	if !exists {
		return ErrNotFound
	}
	if cred.Issuer != sender {
		return ErrNotIssuer
	}
	if cred.Revoked {
		return ErrAlreadyRevoked
	}

	cred.Revoked = true
	l.emit("CredentialRevoked", map[string]string{
		"token_id": strconv.FormatUint(tokenID, 10),
		"issuer":   sender.Hex(),
	})
	return nil
}

// TransferCredential moves ownership from the current owner to another
// address. The credential record itself, including issuer and recipient of
// record, is untouched.
func (l *Ledger) TransferCredential(sender, to common.Address, tokenID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, exists := l.owners[tokenID]
	if !exists {
		return ErrNotFound
	}
	if owner != sender {
		return ErrNotOwner
	}
	if to == (common.Address{}) {
		return ErrInvalidInput
	}

	l.owners[tokenID] = to
	l.byOwner[owner] = removeToken(l.byOwner[owner], tokenID)
	l.byOwner[to] = append(l.byOwner[to], tokenID)

	l.emit("CredentialTransferred", map[string]string{
		"token_id": strconv.FormatUint(tokenID, 10),
		"from":     owner.Hex(),
		"to":       to.Hex(),
	})
	return nil
}

// VerifyCredential reports the ledger's local validity for tokenID. It does
// not consult the registry: a credential can be locally valid while its issuer
// has lost authorization.
func (l *Ledger) VerifyCredential(tokenID uint64) (LocalVerification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cred, exists := l.creds[tokenID]
	if !exists {
		return LocalVerification{}, ErrNotFound
	}
	expired := cred.ExpiredAt(l.now())
	return LocalVerification{
		IsValid:         !cred.Revoked && !expired,
		Issuer:          cred.Issuer,
		Recipient:       cred.Recipient,
		Type:            cred.Type,
		InstitutionName: cred.InstitutionName,
		IssuedAt:        cred.IssuedAt,
		Expired:         expired,
		Revoked:         cred.Revoked,
	}, nil
}

// Lookup returns the tagged read result for tokenID.
func (l *Ledger) Lookup(tokenID uint64) LookupResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cred, exists := l.creds[tokenID]
	if !exists {
		return LookupResult{}
	}
	return LookupResult{
		Found:      true,
		Credential: *cred,
		Owner:      l.owners[tokenID],
	}
}

// GetCredential returns a copy of the credential record.
func (l *Ledger) GetCredential(tokenID uint64) (Credential, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cred, exists := l.creds[tokenID]
	if !exists {
		return Credential{}, ErrNotFound
	}
	return *cred, nil
}

// OwnerOf returns the current owner of tokenID.
func (l *Ledger) OwnerOf(tokenID uint64) (common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	owner, exists := l.owners[tokenID]
	if !exists {
		return common.Address{}, ErrNotFound
	}
	return owner, nil
}

// TokenURI returns the metadata URI recorded at mint time.
func (l *Ledger) TokenURI(tokenID uint64) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, exists := l.creds[tokenID]; !exists {
		return "", ErrNotFound
	}
	return l.tokenURIs[tokenID], nil
}

// GetUserCredentials returns the token ids currently owned by addr.
func (l *Ledger) GetUserCredentials(addr common.Address) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]uint64, len(l.byOwner[addr]))
	copy(out, l.byOwner[addr])
	return out
}

// GetTotalCredentials returns the number of credentials ever minted.
func (l *Ledger) GetTotalCredentials() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextID
}

func (l *Ledger) emit(name string, attrs map[string]string) {
	if l.emitter != nil {
		l.emitter.Emit(ContractName, name, attrs)
	}
}

func removeToken(tokens []uint64, tokenID uint64) []uint64 {
	for i, id := range tokens {
		if id == tokenID {
			return append(tokens[:i], tokens[i+1:]...)
		}
	}
	return tokens
}
