// Package metadata stores credential metadata under content-addressed
// references. Storage happens before any chain submission: a storage failure
// aborts the mint attempt without touching ledger state.
package metadata

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/Atmajo/credora-server/internal/sentinel"
)

// Store is the content-addressed storage collaborator.
type Store interface {
	// Store persists the payload and returns its content reference.
	Store(ctx context.Context, payload []byte) (string, error)
	// Resolve returns a retrieval URL for a content reference.
	Resolve(ctx context.Context, ref string) (string, error)
}

// ContentRef derives the keccak-256 content reference for a payload.
func ContentRef(payload []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// InMemory keeps payloads in memory, keyed by content reference. The demo
// deployment and the tests use it in place of an external object store.
type InMemory struct {
	mu       sync.RWMutex
	payloads map[string][]byte
	baseURL  string
}

// NewInMemory creates an empty in-memory metadata store.
func NewInMemory(baseURL string) *InMemory {
	if baseURL == "" {
		baseURL = "memory://metadata"
	}
	return &InMemory{
		payloads: make(map[string][]byte),
		baseURL:  baseURL,
	}
}

// Store persists the payload under its keccak-256 reference. Storing the same
// payload twice is idempotent and returns the same reference.
func (s *InMemory) Store(_ context.Context, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("empty metadata payload: %w", sentinel.ErrInvalidInput)
	}
	ref := ContentRef(payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[ref] = payload
	return ref, nil
}

// Resolve returns a retrieval URL for ref.
func (s *InMemory) Resolve(_ context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.payloads[ref]; !ok {
		return "", fmt.Errorf("metadata %s: %w", ref, sentinel.ErrNotFound)
	}
	return s.baseURL + "/" + ref, nil
}

// Get returns the stored payload, for tests and the resolve handler.
func (s *InMemory) Get(ref string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.payloads[ref]
	return payload, ok
}
