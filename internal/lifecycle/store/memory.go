// Package store persists PendingTransaction records for the lifecycle
// manager. Both implementations enforce the one-way status transitions.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/lifecycle"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

// InMemory keeps pending transactions in memory.
type InMemory struct {
	mu  sync.RWMutex
	txs map[common.Hash]*lifecycle.PendingTransaction
}

// NewInMemory creates an empty in-memory pending-transaction store.
func NewInMemory() *InMemory {
	return &InMemory{txs: make(map[common.Hash]*lifecycle.PendingTransaction)}
}

// Create records a newly submitted transaction. Exactly one record may exist
// per hash.
func (s *InMemory) Create(_ context.Context, tx *lifecycle.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txs[tx.Hash]; exists {
		return fmt.Errorf("pending transaction %s: %w", tx.Hash.Hex(), sentinel.ErrAlreadyUsed)
	}
	cp := *tx
	s.txs[tx.Hash] = &cp
	return nil
}

// Find returns the record for hash.
func (s *InMemory) Find(_ context.Context, hash common.Hash) (*lifecycle.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, exists := s.txs[hash]
	if !exists {
		return nil, fmt.Errorf("pending transaction %s: %w", hash.Hex(), sentinel.ErrNotFound)
	}
	cp := *tx
	return &cp, nil
}

// UpdateStatus applies a status transition, rejecting illegal ones.
func (s *InMemory) UpdateStatus(_ context.Context, hash common.Hash, next lifecycle.Status, blockNumber uint64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, exists := s.txs[hash]
	if !exists {
		return fmt.Errorf("pending transaction %s: %w", hash.Hex(), sentinel.ErrNotFound)
	}
	if !tx.Status.CanTransitionTo(next) {
		return fmt.Errorf("transition %s -> %s: %w", tx.Status, next, sentinel.ErrInvalidState)
	}
	tx.Status = next
	if blockNumber != 0 {
		tx.BlockNumber = blockNumber
	}
	if reason != "" {
		tx.Reason = reason
	}
	return nil
}

// ListByStatus returns all records currently in the given status.
func (s *InMemory) ListByStatus(_ context.Context, status lifecycle.Status) ([]*lifecycle.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*lifecycle.PendingTransaction
	for _, tx := range s.txs {
		if tx.Status == status {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}
