// Package registry implements the InstitutionRegistry contract: the
// authoritative record of which addresses may issue credentials. Every
// instance carries its own owner and admin set, so tests and deployments can
// construct isolated registries with distinct authorization contexts.
package registry

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/events"
)

// ContractName identifies this contract in the event log.
const ContractName = "InstitutionRegistry"

// Revert reasons. These surface as failed receipts when a mutating call is
// submitted through the chain backend.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrAlreadyRegistered   = errors.New("institution already registered")
	ErrNotRegistered       = errors.New("institution not registered")
	ErrAlreadyVerified     = errors.New("institution already verified")
	ErrNotAuthorized       = errors.New("institution not in authorized issuer set")
	ErrNotAdmin            = errors.New("caller is not an admin")
	ErrNotOwner            = errors.New("caller is not the owner")
	ErrNotAuthorizedIssuer = errors.New("caller is not an authorized issuer")
)

// Institution is one registered credential-issuing organization. The record
// persists across revocation; only Verified and the authorized set change.
type Institution struct {
	Address           common.Address
	Name              string
	Website           string
	Email             string
	DocumentHash      string
	Verified          bool
	RegisteredAt      time.Time
	CredentialsIssued uint64
}

// Stats aggregates registry-wide counters.
type Stats struct {
	TotalRegistered        int
	TotalVerified          int
	TotalCredentialsIssued uint64
}

// Registry is the contract state. Mutating methods take the transaction
// sender explicitly; the chain backend serializes their execution.
type Registry struct {
	mu           sync.RWMutex
	owner        common.Address
	admins       map[common.Address]bool
	institutions map[common.Address]*Institution

	// authorized issuer set with O(1) removal: issuerList keeps enumeration
	// order between revocations, issuerIndex maps address to list position.
	// Removal is swap-with-last-and-pop, so order is not stable across
	// revocations.
	authorized  map[common.Address]bool
	issuerList  []common.Address
	issuerIndex map[common.Address]int

	emitter events.Emitter
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithEmitter attaches an event emitter.
func WithEmitter(e events.Emitter) Option {
	return func(r *Registry) {
		r.emitter = e
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New deploys a registry owned by owner.
func New(owner common.Address, opts ...Option) *Registry {
	r := &Registry{
		owner:        owner,
		admins:       make(map[common.Address]bool),
		institutions: make(map[common.Address]*Institution),
		authorized:   make(map[common.Address]bool),
		issuerIndex:  make(map[common.Address]int),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Owner returns the deploy-time super-admin.
func (r *Registry) Owner() common.Address {
	return r.owner
}

// IsAdmin reports whether addr was granted admin or is the owner.
func (r *Registry) IsAdmin(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isAdminLocked(addr)
}

func (r *Registry) isAdminLocked(addr common.Address) bool {
	return addr == r.owner || r.admins[addr]
}

// AddAdmin grants admin rights. Owner only.
func (r *Registry) AddAdmin(sender, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sender != r.owner {
		return ErrNotOwner
	}
	if addr == (common.Address{}) {
		return ErrInvalidInput
	}
	r.admins[addr] = true
	r.emit("AdminAdded", map[string]string{"admin": addr.Hex()})
	return nil
}

// RemoveAdmin revokes admin rights. Owner only.
func (r *Registry) RemoveAdmin(sender, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sender != r.owner {
		return ErrNotOwner
	}
	delete(r.admins, addr)
	r.emit("AdminRemoved", map[string]string{"admin": addr.Hex()})
	return nil
}

// RegisterInstitution creates an unverified institution record. Admin only.
func (r *Registry) RegisterInstitution(sender, addr common.Address, name, website, email, documentHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdminLocked(sender) {
		return ErrNotAdmin
	}
	if addr == (common.Address{}) || strings.TrimSpace(name) == "" {
		return ErrInvalidInput
	}
	if _, exists := r.institutions[addr]; exists {
		return ErrAlreadyRegistered
	}

	r.institutions[addr] = &Institution{
		Address:      addr,
		Name:         name,
		Website:      website,
		Email:        email,
		DocumentHash: documentHash,
		RegisteredAt: r.now(),
	}
	r.emit("InstitutionRegistered", map[string]string{
		"institution": addr.Hex(),
		"name":        name,
	})
	return nil
}

// VerifyInstitution marks the institution verified and adds it to the
// authorized issuer set. Admin only.
func (r *Registry) VerifyInstitution(sender, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdminLocked(sender) {
		return ErrNotAdmin
	}
	inst, exists := r.institutions[addr]
	if !exists {
		return ErrNotRegistered
	}
	if inst.Verified {
		return ErrAlreadyVerified
	}

	inst.Verified = true
	r.authorized[addr] = true
	r.issuerIndex[addr] = len(r.issuerList)
	r.issuerList = append(r.issuerList, addr)

	r.emit("InstitutionVerified", map[string]string{"institution": addr.Hex()})
	return nil
}

// RevokeInstitution removes the institution from the authorized issuer set and
// clears its verified flag. The record itself persists. Admin only.
func (r *Registry) RevokeInstitution(sender, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdminLocked(sender) {
		return ErrNotAdmin
	}
	if !r.authorized[addr] {
		return ErrNotAuthorized
	}

	inst := r.institutions[addr]
	inst.Verified = false
	delete(r.authorized, addr)

	// Swap-with-last-and-pop keeps removal O(1).
	idx := r.issuerIndex[addr]
	last := len(r.issuerList) - 1
	if idx != last {
		moved := r.issuerList[last]
		r.issuerList[idx] = moved
		r.issuerIndex[moved] = idx
	}
	r.issuerList = r.issuerList[:last]
	delete(r.issuerIndex, addr)

	r.emit("InstitutionRevoked", map[string]string{"institution": addr.Hex()})
	return nil
}

// IsAuthorizedIssuer reports current authorized-set membership. Never fails.
func (r *Registry) IsAuthorizedIssuer(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authorized[addr]
}

// GetInstitution returns a copy of the institution record.
func (r *Registry) GetInstitution(addr common.Address) (Institution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, exists := r.institutions[addr]
	if !exists {
		return Institution{}, ErrNotRegistered
	}
	return *inst, nil
}

// GetAllIssuers returns the current authorized issuer set. Enumeration order
// is not stable across revocations.
func (r *Registry) GetAllIssuers() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, len(r.issuerList))
	copy(out, r.issuerList)
	return out
}

// GetVerifiedInstitutionsCount returns the size of the authorized issuer set.
func (r *Registry) GetVerifiedInstitutionsCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.issuerList)
}

// GetInstitutionStats aggregates registry-wide counters.
func (r *Registry) GetInstitutionStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Stats{
		TotalRegistered: len(r.institutions),
		TotalVerified:   len(r.issuerList),
	}
	for _, inst := range r.institutions {
		stats.TotalCredentialsIssued += inst.CredentialsIssued
	}
	return stats
}

// UpdateInstitutionInfo mutates descriptive fields only; authorization is
// unaffected. Admin only.
func (r *Registry) UpdateInstitutionInfo(sender, addr common.Address, name, website, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdminLocked(sender) {
		return ErrNotAdmin
	}
	inst, exists := r.institutions[addr]
	if !exists {
		return ErrNotRegistered
	}
	if strings.TrimSpace(name) == "" {
		return ErrInvalidInput
	}
	inst.Name = name
	inst.Website = website
	inst.Email = email
	r.emit("InstitutionUpdated", map[string]string{"institution": addr.Hex()})
	return nil
}

// UpdateInstitutionDocuments replaces the document reference. Admin only.
func (r *Registry) UpdateInstitutionDocuments(sender, addr common.Address, documentHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdminLocked(sender) {
		return ErrNotAdmin
	}
	inst, exists := r.institutions[addr]
	if !exists {
		return ErrNotRegistered
	}
	inst.DocumentHash = documentHash
	r.emit("InstitutionDocumentsUpdated", map[string]string{"institution": addr.Hex()})
	return nil
}

// IncrementCredentialCount bumps the issuer's cumulative counter. The ledger
// invokes this during issuance on behalf of the issuing sender, so the caller
// must currently be an authorized issuer.
func (r *Registry) IncrementCredentialCount(issuer common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authorized[issuer] {
		return ErrNotAuthorizedIssuer
	}
	r.institutions[issuer].CredentialsIssued++
	return nil
}

func (r *Registry) emit(name string, attrs map[string]string) {
	if r.emitter != nil {
		r.emitter.Emit(ContractName, name, attrs)
	}
}
