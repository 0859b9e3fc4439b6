package chain

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const baseGas = 21_000

// methodGas approximates per-method execution cost on top of baseGas. Unknown
// methods fall back to defaultMethodGas.
var methodGas = map[string]uint64{
	"registerInstitution":      95_000,
	"verifyInstitution":        47_000,
	"revokeInstitution":        31_000,
	"issueCredential":          160_000,
	"batchIssueCredentials":    160_000,
	"revokeCredential":         29_000,
	"transferCredential":       52_000,
	"verifyCredentialDetailed": 55_000,
}

const defaultMethodGas = 40_000

// Simulated is an in-process chain. Submitted calls execute atomically in
// submission order, each in its own block. Empty blocks can be mined on top so
// confirmation depth is observable, and an inclusion delay can hold receipts
// back to exercise the polling path.
type Simulated struct {
	mu sync.Mutex
	// height is atomic, not mu-guarded: contract code executed inside
	// SubmitTransaction reads the block number through the event log's
	// blockFn while mu is held, so Height must never take the lock.
	height   atomic.Uint64
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*Receipt
	// delayed receipts become visible once height reaches their release block.
	held map[common.Hash]uint64

	// inclusionDelay is the number of blocks mined after submission before the
	// receipt becomes visible. Zero means receipts are visible immediately.
	inclusionDelay uint64
}

// SimOption configures a Simulated backend.
type SimOption func(*Simulated)

// WithInclusionDelay holds each receipt back until n further blocks are mined,
// so AwaitConfirmation has something to poll for.
func WithInclusionDelay(n uint64) SimOption {
	return func(s *Simulated) {
		s.inclusionDelay = n
	}
}

// NewSimulated creates an empty simulated chain at height 0.
func NewSimulated(opts ...SimOption) *Simulated {
	s := &Simulated{
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*Receipt),
		held:     make(map[common.Hash]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitTransaction serializes nonce assignment and executes the call in the
// next block. The whole call, including any cross-contract mutation inside
// Execute, commits in one block, which is what makes the ledger's counter
// callback into the registry atomic with the mint.
func (s *Simulated) SubmitTransaction(_ context.Context, from common.Address, call Call) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := s.nonces[from]
	s.nonces[from] = nonce + 1

	receipt := &Receipt{
		TxHash:      txHash(from, nonce, call),
		Status:      ReceiptStatusSuccessful,
		BlockNumber: s.height.Add(1),
		GasUsed:     gasFor(call),
		From:        from,
		Nonce:       nonce,
	}
	if err := call.Execute(); err != nil {
		receipt.Status = ReceiptStatusFailed
		receipt.Reason = err.Error()
	}

	if s.inclusionDelay > 0 {
		s.held[receipt.TxHash] = receipt.BlockNumber + s.inclusionDelay
	}
	s.receipts[receipt.TxHash] = receipt
	return receipt.TxHash, nil
}

// TransactionReceipt returns the receipt for hash, or ErrReceiptNotFound while
// the transaction is pending (or was never submitted here).
func (s *Simulated) TransactionReceipt(_ context.Context, hash common.Hash) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if release, holding := s.held[hash]; holding {
		if s.height.Load() < release {
			return nil, ErrReceiptNotFound
		}
		delete(s.held, hash)
	}
	receipt, ok := s.receipts[hash]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	return receipt, nil
}

// BlockNumber returns the current height.
func (s *Simulated) BlockNumber(_ context.Context) (uint64, error) {
	return s.height.Load(), nil
}

// EstimateGas prices the call from the static gas table.
func (s *Simulated) EstimateGas(_ context.Context, call Call) (uint64, error) {
	return gasFor(call), nil
}

// PendingNonceAt returns the next nonce for addr.
func (s *Simulated) PendingNonceAt(_ context.Context, addr common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[addr], nil
}

// Height returns the current block number without a context, for event logs.
// Safe to call from contract code executing inside SubmitTransaction.
func (s *Simulated) Height() uint64 {
	return s.height.Load()
}

// MineEmptyBlocks advances the chain by n blocks with no transactions,
// growing confirmation depth for everything already included.
func (s *Simulated) MineEmptyBlocks(n uint64) {
	s.height.Add(n)
}

// StartMining mines an empty block every interval until ctx is cancelled.
// The server runs this so confirmation depth accrues with wall-clock time.
func (s *Simulated) StartMining(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.MineEmptyBlocks(1)
		}
	}
}

func gasFor(call Call) uint64 {
	if g, ok := methodGas[call.Method]; ok {
		return baseGas + g
	}
	return baseGas + defaultMethodGas
}

// txHash derives a deterministic keccak-256 hash from sender, nonce, and call
// target, matching the 32-byte wire shape of a real transaction hash.
func txHash(from common.Address, nonce uint64, call Call) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(from.Bytes())
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])
	h.Write([]byte(call.Contract))
	h.Write([]byte(call.Method))
	return common.BytesToHash(h.Sum(nil))
}
