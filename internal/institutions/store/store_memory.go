package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/institutions/models"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

// MemoryStore keeps institution shadow records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[common.Address]*models.InstitutionRecord
}

func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[common.Address]*models.InstitutionRecord)}
}

// Upsert inserts or replaces the record for its address.
func (s *MemoryStore) Upsert(ctx context.Context, record *models.InstitutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	clone := *record
	if existing, ok := s.records[record.Address]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	s.records[record.Address] = &clone
	return nil
}

func (s *MemoryStore) FindByAddress(ctx context.Context, addr common.Address) (*models.InstitutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

// UpdateStatus moves the record to the given status and stamps the matching
// timestamp field.
func (s *MemoryStore) UpdateStatus(ctx context.Context, addr common.Address, status models.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[addr]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Status = status
	switch status {
	case models.StatusRegistered:
		record.RegisteredAt = &at
	case models.StatusVerified:
		record.VerifiedAt = &at
	}
	record.UpdatedAt = time.Now()
	return nil
}

// ListByStatus returns all records in the given status, ordered by address.
func (s *MemoryStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.InstitutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.InstitutionRecord
	for _, record := range s.records {
		if record.Status == status {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out, nil
}
