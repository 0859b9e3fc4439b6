package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atmajo/credora-server/internal/institutions/models"
	"github.com/Atmajo/credora-server/internal/institutions/store"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

func record(addr common.Address, status models.Status) *models.InstitutionRecord {
	return &models.InstitutionRecord{
		Address: addr,
		Name:    "MIT",
		Website: "https://mit.edu",
		Status:  status,
	}
}

func TestMemoryStoreUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	addr := common.HexToAddress("0x10")

	require.NoError(t, s.Upsert(ctx, record(addr, models.StatusPending)))

	got, err := s.FindByAddress(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.FindByAddress(ctx, common.HexToAddress("0x99"))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStoreUpdateStatusStampsTimestamps(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	addr := common.HexToAddress("0x10")
	require.NoError(t, s.Upsert(ctx, record(addr, models.StatusPending)))

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateStatus(ctx, addr, models.StatusRegistered, at))
	require.NoError(t, s.UpdateStatus(ctx, addr, models.StatusVerified, at.Add(time.Minute)))

	got, err := s.FindByAddress(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, got.Status)
	require.NotNil(t, got.RegisteredAt)
	require.NotNil(t, got.VerifiedAt)
	assert.Equal(t, at, *got.RegisteredAt)

	assert.ErrorIs(t, s.UpdateStatus(ctx, common.HexToAddress("0x99"), models.StatusVerified, at), sentinel.ErrNotFound)
}

func TestMemoryStoreListByStatus(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	a := common.HexToAddress("0x10")
	b := common.HexToAddress("0x11")
	c := common.HexToAddress("0x12")

	require.NoError(t, s.Upsert(ctx, record(b, models.StatusVerified)))
	require.NoError(t, s.Upsert(ctx, record(a, models.StatusVerified)))
	require.NoError(t, s.Upsert(ctx, record(c, models.StatusPending)))

	verified, err := s.ListByStatus(ctx, models.StatusVerified)
	require.NoError(t, err)
	require.Len(t, verified, 2)
	assert.Equal(t, a, verified[0].Address)
	assert.Equal(t, b, verified[1].Address)
}
