//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/credentials/store"
	"github.com/Atmajo/credora-server/internal/ledger"
	"github.com/Atmajo/credora-server/internal/sentinel"
	"github.com/Atmajo/credora-server/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "credentials"))
}

func (s *PostgresStoreSuite) record(tokenID uint64) *models.CredentialRecord {
	return &models.CredentialRecord{
		TokenID:         tokenID,
		Issuer:          common.HexToAddress("0x0000000000000000000000000000000000000010"),
		Recipient:       common.HexToAddress("0x0000000000000000000000000000000000000020"),
		Type:            ledger.TypeDegree,
		InstitutionName: "MIT",
		IssuedAt:        time.Now().UTC().Truncate(time.Microsecond),
		ExpiresAt:       0,
		MetadataRef:     "0xref",
		TokenURI:        "https://metadata.credora.dev/0xref",
		TxHash:          common.HexToHash("0xabc"),
		BlockNumber:     7,
	}
}

func (s *PostgresStoreSuite) TestUpsertAndFindRoundTrip() {
	ctx := context.Background()
	want := s.record(1)
	s.Require().NoError(s.store.UpsertCredential(ctx, want))

	got, err := s.store.FindByTokenID(ctx, 1)
	s.Require().NoError(err)
	s.Equal(want.TokenID, got.TokenID)
	s.Equal(want.Issuer, got.Issuer)
	s.Equal(want.Recipient, got.Recipient)
	s.Equal(want.Type, got.Type)
	s.Equal(want.InstitutionName, got.InstitutionName)
	s.Equal(want.MetadataRef, got.MetadataRef)
	s.Equal(want.TxHash, got.TxHash)
	s.Equal(want.BlockNumber, got.BlockNumber)
	s.False(got.Revoked)
	s.Nil(got.RevokedAt)

	_, err = s.store.FindByTokenID(ctx, 2)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpsertReplacesExistingRow() {
	ctx := context.Background()
	s.Require().NoError(s.store.UpsertCredential(ctx, s.record(1)))

	updated := s.record(1)
	updated.BlockNumber = 42
	updated.Revoked = true
	s.Require().NoError(s.store.UpsertCredential(ctx, updated))

	got, err := s.store.FindByTokenID(ctx, 1)
	s.Require().NoError(err)
	s.Equal(uint64(42), got.BlockNumber)
	s.True(got.Revoked)
}

func (s *PostgresStoreSuite) TestFindByRecipientAndIssuer() {
	ctx := context.Background()
	other := s.record(2)
	other.Recipient = common.HexToAddress("0x0000000000000000000000000000000000000021")
	s.Require().NoError(s.store.UpsertCredential(ctx, s.record(3)))
	s.Require().NoError(s.store.UpsertCredential(ctx, s.record(1)))
	s.Require().NoError(s.store.UpsertCredential(ctx, other))

	byRecipient, err := s.store.FindByRecipient(ctx, common.HexToAddress("0x0000000000000000000000000000000000000020"))
	s.Require().NoError(err)
	s.Require().Len(byRecipient, 2)
	s.Equal(uint64(1), byRecipient[0].TokenID)
	s.Equal(uint64(3), byRecipient[1].TokenID)

	byIssuer, err := s.store.FindByIssuer(ctx, common.HexToAddress("0x0000000000000000000000000000000000000010"))
	s.Require().NoError(err)
	s.Len(byIssuer, 3)
}

func (s *PostgresStoreSuite) TestMarkRevokedKeepsFirstTimestamp() {
	ctx := context.Background()
	s.Require().NoError(s.store.UpsertCredential(ctx, s.record(1)))

	first := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.MarkRevoked(ctx, 1, first))
	s.Require().NoError(s.store.MarkRevoked(ctx, 1, first.Add(time.Hour)))

	got, err := s.store.FindByTokenID(ctx, 1)
	s.Require().NoError(err)
	s.True(got.Revoked)
	s.Require().NotNil(got.RevokedAt)
	s.True(got.RevokedAt.Equal(first))

	s.Require().ErrorIs(s.store.MarkRevoked(ctx, 99, first), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestIncrementVerificationCount() {
	ctx := context.Background()
	s.Require().NoError(s.store.UpsertCredential(ctx, s.record(1)))

	s.Require().NoError(s.store.IncrementVerificationCount(ctx, 1))
	s.Require().NoError(s.store.IncrementVerificationCount(ctx, 1))

	got, err := s.store.FindByTokenID(ctx, 1)
	s.Require().NoError(err)
	s.Equal(uint64(2), got.VerificationCount)

	s.Require().ErrorIs(s.store.IncrementVerificationCount(ctx, 99), sentinel.ErrNotFound)
}
