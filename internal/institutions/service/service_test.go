package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"github.com/Atmajo/credora-server/internal/chain"
	"github.com/Atmajo/credora-server/internal/institutions/models"
	"github.com/Atmajo/credora-server/internal/institutions/service"
	instore "github.com/Atmajo/credora-server/internal/institutions/store"
	"github.com/Atmajo/credora-server/internal/lifecycle"
	lifecyclestore "github.com/Atmajo/credora-server/internal/lifecycle/store"
	"github.com/Atmajo/credora-server/internal/registry"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

var (
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	university = common.HexToAddress("0x0000000000000000000000000000000000000010")
	stranger   = common.HexToAddress("0x0000000000000000000000000000000000000040")
)

type OnboardingSuite struct {
	suite.Suite
	backend  *chain.Simulated
	registry *registry.Registry
	records  *instore.MemoryStore
	service  *service.Service
}

func (s *OnboardingSuite) SetupTest() {
	s.buildService(chain.NewSimulated(), time.Second)
}

func (s *OnboardingSuite) buildService(backend *chain.Simulated, confirmTimeout time.Duration) {
	s.backend = backend
	s.registry = registry.New(owner)
	s.records = instore.NewMemory()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := lifecycle.New(s.backend, lifecyclestore.NewInMemory(),
		lifecycle.WithLogger(logger),
		lifecycle.WithPollInterval(time.Millisecond),
		lifecycle.WithConfirmTimeout(confirmTimeout),
		lifecycle.WithMinConfirmations(0),
	)
	s.service = service.NewService(s.registry, manager, s.records, service.WithLogger(logger))
}

func TestOnboardingSuite(t *testing.T) {
	suite.Run(t, new(OnboardingSuite))
}

func (s *OnboardingSuite) onboardRequest() models.OnboardRequest {
	return models.OnboardRequest{
		Address:      university,
		Name:         "MIT",
		Website:      "https://mit.edu",
		Email:        "registrar@mit.edu",
		DocumentHash: "0xdoc",
	}
}

func (s *OnboardingSuite) TestOnboardRegistersAndVerifies() {
	ctx := context.Background()

	result, err := s.service.Onboard(ctx, owner, s.onboardRequest())
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, result.Status)

	s.True(s.registry.IsAuthorizedIssuer(university))

	record, err := s.records.FindByAddress(ctx, university)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, record.Status)
	s.NotEqual(common.Hash{}, record.RegisterTxHash)
	s.NotEqual(common.Hash{}, record.VerifyTxHash)
}

func (s *OnboardingSuite) TestOnboardIsIdempotent() {
	ctx := context.Background()
	_, err := s.service.Onboard(ctx, owner, s.onboardRequest())
	s.Require().NoError(err)

	// Both steps skip: the end-state already holds, nothing is resubmitted.
	height := s.backend.Height()
	result, err := s.service.Onboard(ctx, owner, s.onboardRequest())
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, result.Status)
	s.Equal(height, s.backend.Height())
}

func (s *OnboardingSuite) TestOnboardResumesAfterPartialRegistration() {
	ctx := context.Background()
	s.Require().NoError(s.registry.RegisterInstitution(owner, university, "MIT", "", "", ""))

	result, err := s.service.Onboard(ctx, owner, s.onboardRequest())
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, result.Status)
	s.True(s.registry.IsAuthorizedIssuer(university))
}

func (s *OnboardingSuite) TestOnboardByNonAdminFails() {
	_, err := s.service.Onboard(context.Background(), stranger, s.onboardRequest())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAdmin))
	s.False(s.registry.IsAuthorizedIssuer(university))
}

func (s *OnboardingSuite) TestOnboardPartialSuccessOnSlowInclusion() {
	s.buildService(chain.NewSimulated(chain.WithInclusionDelay(5)), 50*time.Millisecond)
	ctx := context.Background()

	result, err := s.service.Onboard(ctx, owner, s.onboardRequest())
	s.Require().NoError(err)
	s.Equal(models.StatusPending, result.Status)
	s.NotEqual(common.Hash{}, result.PendingTxHash)

	// The register step executed on-chain but the shadow must not claim it.
	record, err := s.records.FindByAddress(ctx, university)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, record.Status)

	// Once the chain catches up, reconciliation upgrades the shadow.
	s.backend.MineEmptyBlocks(5)
	record, err = s.service.CheckRegistration(ctx, university)
	s.Require().NoError(err)
	s.Equal(models.StatusRegistered, record.Status)
}

func (s *OnboardingSuite) TestRevokeDowngradesShadowAfterConfirmation() {
	ctx := context.Background()
	_, err := s.service.Onboard(ctx, owner, s.onboardRequest())
	s.Require().NoError(err)

	s.Require().NoError(s.service.Revoke(ctx, owner, university))
	s.False(s.registry.IsAuthorizedIssuer(university))

	record, err := s.records.FindByAddress(ctx, university)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, record.Status)

	// Reconciliation keeps the revoked state: registered on-chain but out of
	// the authorized set.
	record, err = s.service.CheckRegistration(ctx, university)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, record.Status)
}

func (s *OnboardingSuite) TestRevokeAlreadyRevokedIsForbidden() {
	ctx := context.Background()
	_, err := s.service.Onboard(ctx, owner, s.onboardRequest())
	s.Require().NoError(err)
	s.Require().NoError(s.service.Revoke(ctx, owner, university))

	// Registered but no longer in the authorized set: an authorization
	// failure, not a missing institution.
	err = s.service.Revoke(ctx, owner, university)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.False(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *OnboardingSuite) TestCheckRegistrationForUnknownInstitution() {
	_, err := s.service.CheckRegistration(context.Background(), stranger)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *OnboardingSuite) TestValidation() {
	_, err := s.service.Onboard(context.Background(), owner, models.OnboardRequest{Name: "MIT"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Onboard(context.Background(), owner, models.OnboardRequest{Address: university})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *OnboardingSuite) TestStatsAndIssuerList() {
	ctx := context.Background()
	_, err := s.service.Onboard(ctx, owner, s.onboardRequest())
	s.Require().NoError(err)

	stats := s.service.Stats()
	s.Equal(1, stats.TotalRegistered)
	s.Equal(1, stats.TotalVerified)
	s.Equal([]common.Address{university}, s.service.ListIssuers())
}
