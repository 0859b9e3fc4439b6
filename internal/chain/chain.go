// Package chain provides the execution backend the contract state machines run
// on. The Backend interface is the seam between the off-chain service layer and
// the chain; Simulated is the in-process implementation used by the server and
// the tests. Every state-mutating call goes through SubmitTransaction so that
// nonce assignment, atomic execution, receipts, and confirmation depth behave
// the way they do against a real node.
package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/sentinel"
)

// Receipt status values mirror EVM receipt semantics: 1 success, 0 revert.
const (
	ReceiptStatusSuccessful uint64 = 1
	ReceiptStatusFailed     uint64 = 0
)

// ErrReceiptNotFound is returned by TransactionReceipt while a transaction has
// been submitted but not yet included in a block.
var ErrReceiptNotFound = fmt.Errorf("transaction receipt: %w", sentinel.ErrNotFound)

// Call describes one state-mutating contract invocation. Execute runs exactly
// once, atomically, when the transaction is included in a block. Contract
// methods validate before they mutate, so a non-nil return from Execute leaves
// contract state untouched and becomes a reverted receipt.
type Call struct {
	Contract string
	Method   string
	Execute  func() error
}

// Receipt records the outcome of an included transaction.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
	From        common.Address
	Nonce       uint64
	// Reason carries the revert reason when Status is ReceiptStatusFailed.
	Reason string
}

// Reverted reports whether the transaction executed and failed.
func (r *Receipt) Reverted() bool {
	return r.Status == ReceiptStatusFailed
}

// Backend is the minimal node surface the lifecycle manager needs.
type Backend interface {
	// SubmitTransaction assigns the sender's next nonce and broadcasts the
	// call. Submission is serialized per backend: the nonce mutex is the one
	// mandatory mutual-exclusion point shared by all concurrent callers.
	SubmitTransaction(ctx context.Context, from common.Address, call Call) (common.Hash, error)
	// TransactionReceipt returns ErrReceiptNotFound until the transaction is
	// included in a block.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	// BlockNumber returns the current chain height.
	BlockNumber(ctx context.Context) (uint64, error)
	// EstimateGas prices the call without executing it.
	EstimateGas(ctx context.Context, call Call) (uint64, error)
}
