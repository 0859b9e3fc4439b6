package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

// MemoryStore keeps credential shadow records in process memory. Suitable for
// tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uint64]*models.CredentialRecord
}

func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[uint64]*models.CredentialRecord)}
}

// UpsertCredential inserts or replaces the record for its token id.
func (s *MemoryStore) UpsertCredential(ctx context.Context, record *models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	clone := *record
	if existing, ok := s.records[record.TokenID]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	s.records[record.TokenID] = &clone
	return nil
}

func (s *MemoryStore) FindByTokenID(ctx context.Context, tokenID uint64) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[tokenID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

// FindByRecipient returns all records minted to addr, ordered by token id.
func (s *MemoryStore) FindByRecipient(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error) {
	return s.filter(func(r *models.CredentialRecord) bool { return r.Recipient == addr }), nil
}

// FindByIssuer returns all records minted by addr, ordered by token id.
func (s *MemoryStore) FindByIssuer(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error) {
	return s.filter(func(r *models.CredentialRecord) bool { return r.Issuer == addr }), nil
}

func (s *MemoryStore) filter(keep func(*models.CredentialRecord) bool) []*models.CredentialRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.CredentialRecord
	for _, record := range s.records {
		if keep(record) {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// MarkRevoked flips the record to revoked. Idempotent: a second call leaves
// the original revocation time in place.
func (s *MemoryStore) MarkRevoked(ctx context.Context, tokenID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Revoked {
		return nil
	}
	record.Revoked = true
	record.RevokedAt = &at
	record.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) IncrementVerificationCount(ctx context.Context, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.VerificationCount++
	record.UpdatedAt = time.Now()
	return nil
}
