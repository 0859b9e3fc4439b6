// Package lifecycle drives state-changing chain calls to completion: it
// submits transactions, polls for receipts under a hard deadline, applies a
// minimum confirmation depth, and reconciles outcomes into the local
// pending-transaction store.
package lifecycle

//go:generate mockgen -source=manager.go -destination=mocks/mocks.go -package=mocks Store
//go:generate mockgen -destination=mocks/backend_mock.go -package=mocks github.com/Atmajo/credora-server/internal/chain Backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/chain"
	lifecyclemetrics "github.com/Atmajo/credora-server/internal/lifecycle/metrics"
	"github.com/Atmajo/credora-server/internal/sentinel"
	"github.com/Atmajo/credora-server/pkg/platform/circuit"
)

// ErrAwaitTimeout is returned when the confirmation deadline elapses before a
// receipt reaches the required depth. The transaction itself is still on the
// wire; callers re-check later via the hash.
var ErrAwaitTimeout = errors.New("timed out awaiting confirmation")

// ErrTxReverted is returned when the receipt reports on-chain execution
// failure. Terminal; never retried automatically.
var ErrTxReverted = errors.New("transaction reverted")

// ErrCircuitOpen is returned by Submit while the node breaker is open. No
// backend call is attempted; callers retry once the node recovers.
var ErrCircuitOpen = errors.New("chain node circuit open")

// Store persists PendingTransaction records. Implementations enforce the
// one-way status transitions.
type Store interface {
	Create(ctx context.Context, tx *PendingTransaction) error
	Find(ctx context.Context, hash common.Hash) (*PendingTransaction, error)
	UpdateStatus(ctx context.Context, hash common.Hash, next Status, blockNumber uint64, reason string) error
}

// Manager is the transaction lifecycle manager.
type Manager struct {
	backend chain.Backend
	store   Store
	breaker *circuit.Breaker

	pollInterval     time.Duration
	confirmTimeout   time.Duration
	minConfirmations uint64

	logger  *slog.Logger
	metrics *lifecyclemetrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics attaches lifecycle metrics.
func WithMetrics(metrics *lifecyclemetrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithPollInterval sets the fixed receipt polling cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// WithConfirmTimeout sets the hard wall-clock deadline for one wait.
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.confirmTimeout = timeout
		}
	}
}

// WithMinConfirmations sets the confirmation depth required before a receipt
// counts as confirmed. Depth absorbs chain reorganizations; "receipt exists"
// alone is not confirmation.
func WithMinConfirmations(depth uint64) Option {
	return func(m *Manager) {
		m.minConfirmations = depth
	}
}

// WithBreaker sets the circuit breaker guarding node calls.
func WithBreaker(breaker *circuit.Breaker) Option {
	return func(m *Manager) {
		if breaker != nil {
			m.breaker = breaker
		}
	}
}

// New creates a lifecycle manager over the given backend and store.
func New(backend chain.Backend, store Store, opts ...Option) *Manager {
	m := &Manager{
		backend:          backend,
		store:            store,
		breaker:          circuit.New("chain-node"),
		pollInterval:     2 * time.Second,
		confirmTimeout:   60 * time.Second,
		minConfirmations: 2,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit estimates gas, broadcasts the call, and records the pending
// transaction. Nonce assignment serializes inside the backend. While the node
// breaker is open, Submit fails fast without touching the backend.
func (m *Manager) Submit(ctx context.Context, kind Kind, from common.Address, call chain.Call) (*PendingTransaction, error) {
	if m.breaker.IsOpen() {
		return nil, errors.Join(sentinel.ErrUnavailable, ErrCircuitOpen)
	}

	gas, err := m.backend.EstimateGas(ctx, call)
	if err != nil {
		if m.breaker.RecordFailure() {
			m.logger.Warn("chain node circuit opened", "breaker", m.breaker.Name())
		}
		return nil, errors.Join(sentinel.ErrUnavailable, err)
	}

	hash, err := m.backend.SubmitTransaction(ctx, from, call)
	if err != nil {
		if m.breaker.RecordFailure() {
			m.logger.Warn("chain node circuit opened", "breaker", m.breaker.Name())
		}
		return nil, errors.Join(sentinel.ErrUnavailable, err)
	}
	m.breaker.RecordSuccess()

	now := time.Now()
	tx := &PendingTransaction{
		Hash:        hash,
		Kind:        kind,
		From:        from,
		Status:      StatusSubmitted,
		GasEstimate: gas,
		SubmittedAt: now,
		Deadline:    now.Add(m.confirmTimeout),
	}
	if err := m.store.Create(ctx, tx); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.IncrementSubmitted(string(kind))
	}
	m.logger.Info("transaction submitted",
		"tx_hash", hash.Hex(),
		"kind", kind,
		"from", from.Hex(),
		"gas_estimate", gas,
	)
	return tx, nil
}

// AwaitConfirmation polls for the receipt of hash at a fixed interval until
// the transaction is confirmed at the required depth, reverts, or the
// deadline elapses. The deadline always wins a tie with the poll timer. The
// underlying transaction is never cancelled: hitting the deadline abandons
// the wait, marks the record timed_out, and returns ErrAwaitTimeout.
func (m *Manager) AwaitConfirmation(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, m.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	start := time.Now()
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, m.resolveInterrupted(ctx, hash, attempts)
		case <-ticker.C:
			// Both timers may fire near-simultaneously; the deadline wins.
			if ctx.Err() != nil {
				return nil, m.resolveInterrupted(ctx, hash, attempts)
			}
			attempts++

			receipt, err := m.backend.TransactionReceipt(ctx, hash)
			if errors.Is(err, chain.ErrReceiptNotFound) {
				m.breaker.RecordSuccess()
				continue
			}
			if err != nil {
				if m.breaker.RecordFailure() {
					m.logger.Warn("chain node circuit opened", "breaker", m.breaker.Name())
				}
				continue
			}
			m.breaker.RecordSuccess()

			if receipt.Reverted() {
				return receipt, m.resolveFailed(hash, receipt, attempts)
			}

			head, err := m.backend.BlockNumber(ctx)
			if err != nil {
				m.breaker.RecordFailure()
				continue
			}
			if head < receipt.BlockNumber || head-receipt.BlockNumber < m.minConfirmations {
				continue
			}
			return receipt, m.resolveConfirmed(hash, receipt, start, attempts)
		}
	}
}

// Run submits the call and waits for its outcome in one step.
func (m *Manager) Run(ctx context.Context, kind Kind, from common.Address, call chain.Call) (*Outcome, error) {
	tx, err := m.Submit(ctx, kind, from, call)
	if err != nil {
		return nil, err
	}

	receipt, err := m.AwaitConfirmation(ctx, tx.Hash)
	outcome := &Outcome{Tx: tx, Receipt: receipt}
	switch {
	case errors.Is(err, ErrAwaitTimeout):
		outcome.Status = StatusTimedOut
	case errors.Is(err, ErrTxReverted):
		outcome.Status = StatusFailed
		outcome.RevertReason = receipt.Reason
	case err != nil:
		return nil, err
	default:
		outcome.Status = StatusConfirmed
	}
	outcome.Tx.Status = outcome.Status
	if receipt != nil {
		outcome.Tx.BlockNumber = receipt.BlockNumber
	}
	return outcome, nil
}

// Outcome is the resolved result of one submitted call.
type Outcome struct {
	Tx           *PendingTransaction
	Receipt      *chain.Receipt
	Status       Status
	RevertReason string
}

// Confirmed reports whether the call reached the required depth.
func (o *Outcome) Confirmed() bool {
	return o.Status == StatusConfirmed
}

// CheckStatus re-checks a transaction out-of-band. If the record is still
// unresolved (submitted or timed_out) it probes the chain once and upgrades
// the record when a decisive receipt is found. The shadow layer relies on
// this to never claim more than what is confirmed on-chain.
func (m *Manager) CheckStatus(ctx context.Context, hash common.Hash) (*PendingTransaction, error) {
	tx, err := m.store.Find(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return tx, nil
	}

	receipt, err := m.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, chain.ErrReceiptNotFound) {
		return tx, nil
	}
	if err != nil {
		return nil, errors.Join(sentinel.ErrUnavailable, err)
	}

	if receipt.Reverted() {
		if err := m.store.UpdateStatus(ctx, hash, StatusFailed, receipt.BlockNumber, receipt.Reason); err != nil {
			return nil, err
		}
		m.resolveMetrics(StatusFailed)
		return m.store.Find(ctx, hash)
	}

	head, err := m.backend.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Join(sentinel.ErrUnavailable, err)
	}
	if head < receipt.BlockNumber || head-receipt.BlockNumber < m.minConfirmations {
		// Receipt exists but depth is insufficient; status is unchanged.
		return tx, nil
	}

	if err := m.store.UpdateStatus(ctx, hash, StatusConfirmed, receipt.BlockNumber, ""); err != nil {
		return nil, err
	}
	m.resolveMetrics(StatusConfirmed)
	m.logger.Info("transaction confirmed out-of-band",
		"tx_hash", hash.Hex(),
		"block", receipt.BlockNumber,
	)
	return m.store.Find(ctx, hash)
}

// resolveInterrupted separates caller cancellation from the confirmation
// deadline. Only the deadline marks the record timed_out; an aborted request
// leaves it submitted so CheckStatus can still upgrade it later.
func (m *Manager) resolveInterrupted(ctx context.Context, hash common.Hash, attempts int) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		m.logger.Info("confirmation wait cancelled",
			"tx_hash", hash.Hex(),
			"poll_attempts", attempts,
		)
		return context.Canceled
	}
	return m.resolveTimeout(hash, attempts)
}

func (m *Manager) resolveTimeout(hash common.Hash, attempts int) error {
	// The record may be missing if submission and await raced a restart;
	// the timeout still stands.
	if err := m.store.UpdateStatus(context.Background(), hash, StatusTimedOut, 0, ""); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		m.logger.Error("failed to mark transaction timed out", "tx_hash", hash.Hex(), "error", err)
	}
	m.resolveMetrics(StatusTimedOut)
	if m.metrics != nil {
		m.metrics.ObservePollAttempts(attempts)
	}
	m.logger.Warn("confirmation wait timed out",
		"tx_hash", hash.Hex(),
		"poll_attempts", attempts,
	)
	return ErrAwaitTimeout
}

func (m *Manager) resolveFailed(hash common.Hash, receipt *chain.Receipt, attempts int) error {
	if err := m.store.UpdateStatus(context.Background(), hash, StatusFailed, receipt.BlockNumber, receipt.Reason); err != nil {
		m.logger.Error("failed to mark transaction failed", "tx_hash", hash.Hex(), "error", err)
	}
	m.resolveMetrics(StatusFailed)
	if m.metrics != nil {
		m.metrics.ObservePollAttempts(attempts)
	}
	m.logger.Warn("transaction reverted",
		"tx_hash", hash.Hex(),
		"block", receipt.BlockNumber,
		"reason", receipt.Reason,
	)
	return ErrTxReverted
}

func (m *Manager) resolveConfirmed(hash common.Hash, receipt *chain.Receipt, start time.Time, attempts int) error {
	if err := m.store.UpdateStatus(context.Background(), hash, StatusConfirmed, receipt.BlockNumber, ""); err != nil {
		m.logger.Error("failed to mark transaction confirmed", "tx_hash", hash.Hex(), "error", err)
	}
	m.resolveMetrics(StatusConfirmed)
	if m.metrics != nil {
		m.metrics.ObserveConfirmation(start)
		m.metrics.ObservePollAttempts(attempts)
	}
	m.logger.Info("transaction confirmed",
		"tx_hash", hash.Hex(),
		"block", receipt.BlockNumber,
		"poll_attempts", attempts,
	)
	return nil
}

func (m *Manager) resolveMetrics(status Status) {
	if m.metrics != nil {
		m.metrics.IncrementResolved(string(status))
	}
}
