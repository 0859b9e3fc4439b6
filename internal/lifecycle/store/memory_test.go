package store

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atmajo/credora-server/internal/lifecycle"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

func pendingTx(hash byte) *lifecycle.PendingTransaction {
	return &lifecycle.PendingTransaction{
		Hash:        common.BytesToHash([]byte{hash}),
		Kind:        lifecycle.KindIssue,
		From:        common.HexToAddress("0xbbbb000000000000000000000000000000000001"),
		Status:      lifecycle.StatusSubmitted,
		SubmittedAt: time.Now(),
		Deadline:    time.Now().Add(30 * time.Second),
	}
}

func TestCreateAndFind(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	tx := pendingTx(1)

	require.NoError(t, s.Create(ctx, tx))

	found, err := s.Find(ctx, tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusSubmitted, found.Status)
	assert.Equal(t, lifecycle.KindIssue, found.Kind)
}

func TestCreate_DuplicateHashRejected(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	tx := pendingTx(1)

	require.NoError(t, s.Create(ctx, tx))
	err := s.Create(ctx, tx)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestFind_Unknown(t *testing.T) {
	s := NewInMemory()
	_, err := s.Find(context.Background(), common.BytesToHash([]byte{9}))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestUpdateStatus_LegalTransitions(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	tx := pendingTx(1)
	require.NoError(t, s.Create(ctx, tx))

	require.NoError(t, s.UpdateStatus(ctx, tx.Hash, lifecycle.StatusTimedOut, 0, ""))
	// Out-of-band discovery may upgrade timed_out to confirmed.
	require.NoError(t, s.UpdateStatus(ctx, tx.Hash, lifecycle.StatusConfirmed, 12, ""))

	found, err := s.Find(ctx, tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusConfirmed, found.Status)
	assert.Equal(t, uint64(12), found.BlockNumber)
}

func TestUpdateStatus_TerminalStatesNeverReopen(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	confirmed := pendingTx(1)
	require.NoError(t, s.Create(ctx, confirmed))
	require.NoError(t, s.UpdateStatus(ctx, confirmed.Hash, lifecycle.StatusConfirmed, 5, ""))
	assert.ErrorIs(t, s.UpdateStatus(ctx, confirmed.Hash, lifecycle.StatusFailed, 0, ""), sentinel.ErrInvalidState)
	assert.ErrorIs(t, s.UpdateStatus(ctx, confirmed.Hash, lifecycle.StatusSubmitted, 0, ""), sentinel.ErrInvalidState)

	failed := pendingTx(2)
	require.NoError(t, s.Create(ctx, failed))
	require.NoError(t, s.UpdateStatus(ctx, failed.Hash, lifecycle.StatusFailed, 5, "reverted"))
	assert.ErrorIs(t, s.UpdateStatus(ctx, failed.Hash, lifecycle.StatusConfirmed, 0, ""), sentinel.ErrInvalidState)
}

func TestListByStatus(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	a, b, c := pendingTx(1), pendingTx(2), pendingTx(3)
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))
	require.NoError(t, s.Create(ctx, c))
	require.NoError(t, s.UpdateStatus(ctx, b.Hash, lifecycle.StatusConfirmed, 3, ""))

	submitted, err := s.ListByStatus(ctx, lifecycle.StatusSubmitted)
	require.NoError(t, err)
	assert.Len(t, submitted, 2)

	confirmed, err := s.ListByStatus(ctx, lifecycle.StatusConfirmed)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, b.Hash, confirmed[0].Hash)
}
