package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/Atmajo/credora-server/internal/lifecycle"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

const (
	txKeyPrefix = "pending_tx:"

	// defaultTxTTL bounds how long resolved records are retained; callers
	// re-checking a very old hash fall back to the chain itself.
	defaultTxTTL = 30 * 24 * time.Hour
)

// txJSON is the JSON-serializable representation of a PendingTransaction.
type txJSON struct {
	Hash        string `json:"hash"`
	Kind        string `json:"kind"`
	From        string `json:"from"`
	Status      string `json:"status"`
	GasEstimate uint64 `json:"gas_estimate"`
	SubmittedAt int64  `json:"submitted_at"` // Unix nano
	Deadline    int64  `json:"deadline"`     // Unix nano
	BlockNumber uint64 `json:"block_number"`
	Reason      string `json:"reason,omitempty"`
}

func toJSON(tx *lifecycle.PendingTransaction) *txJSON {
	return &txJSON{
		Hash:        tx.Hash.Hex(),
		Kind:        string(tx.Kind),
		From:        tx.From.Hex(),
		Status:      string(tx.Status),
		GasEstimate: tx.GasEstimate,
		SubmittedAt: tx.SubmittedAt.UnixNano(),
		Deadline:    tx.Deadline.UnixNano(),
		BlockNumber: tx.BlockNumber,
		Reason:      tx.Reason,
	}
}

func fromJSON(j *txJSON) *lifecycle.PendingTransaction {
	return &lifecycle.PendingTransaction{
		Hash:        common.HexToHash(j.Hash),
		Kind:        lifecycle.Kind(j.Kind),
		From:        common.HexToAddress(j.From),
		Status:      lifecycle.Status(j.Status),
		GasEstimate: j.GasEstimate,
		SubmittedAt: time.Unix(0, j.SubmittedAt),
		Deadline:    time.Unix(0, j.Deadline),
		BlockNumber: j.BlockNumber,
		Reason:      j.Reason,
	}
}

// Redis persists pending transactions in Redis so status survives restarts
// and is shared between replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed pending-transaction store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, ttl: defaultTxTTL}
}

func txKey(hash common.Hash) string {
	return txKeyPrefix + hash.Hex()
}

// Create records a newly submitted transaction, refusing duplicates.
func (s *Redis) Create(ctx context.Context, tx *lifecycle.PendingTransaction) error {
	data, err := json.Marshal(toJSON(tx))
	if err != nil {
		return fmt.Errorf("marshal pending transaction: %w", err)
	}
	ok, err := s.client.SetNX(ctx, txKey(tx.Hash), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create pending transaction: %w", err)
	}
	if !ok {
		return fmt.Errorf("pending transaction %s: %w", tx.Hash.Hex(), sentinel.ErrAlreadyUsed)
	}
	return nil
}

// Find returns the record for hash.
func (s *Redis) Find(ctx context.Context, hash common.Hash) (*lifecycle.PendingTransaction, error) {
	data, err := s.client.Get(ctx, txKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pending transaction %s: %w", hash.Hex(), sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find pending transaction: %w", err)
	}
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal pending transaction: %w", err)
	}
	return fromJSON(&j), nil
}

// UpdateStatus applies a status transition, rejecting illegal ones. The
// read-check-write runs under a per-key watch so concurrent resolvers cannot
// both win.
func (s *Redis) UpdateStatus(ctx context.Context, hash common.Hash, next lifecycle.Status, blockNumber uint64, reason string) error {
	key := txKey(hash)
	return s.client.Watch(ctx, func(rtx *redis.Tx) error {
		data, err := rtx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("pending transaction %s: %w", hash.Hex(), sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("find pending transaction: %w", err)
		}
		var j txJSON
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("unmarshal pending transaction: %w", err)
		}
		current := lifecycle.Status(j.Status)
		if !current.CanTransitionTo(next) {
			return fmt.Errorf("transition %s -> %s: %w", current, next, sentinel.ErrInvalidState)
		}
		j.Status = string(next)
		if blockNumber != 0 {
			j.BlockNumber = blockNumber
		}
		if reason != "" {
			j.Reason = reason
		}
		updated, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("marshal pending transaction: %w", err)
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.ttl)
			return nil
		})
		return err
	}, key)
}
