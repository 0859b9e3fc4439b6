package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/chain"
	"github.com/Atmajo/credora-server/internal/institutions/models"
	"github.com/Atmajo/credora-server/internal/lifecycle"
	"github.com/Atmajo/credora-server/internal/registry"
	"github.com/Atmajo/credora-server/internal/sentinel"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

// InstitutionStore defines the persistence interface for institution shadow
// records. Error contract: Find methods return sentinel.ErrNotFound when the
// record doesn't exist.
type InstitutionStore interface {
	Upsert(ctx context.Context, record *models.InstitutionRecord) error
	FindByAddress(ctx context.Context, addr common.Address) (*models.InstitutionRecord, error)
	UpdateStatus(ctx context.Context, addr common.Address, status models.Status, at time.Time) error
	ListByStatus(ctx context.Context, status models.Status) ([]*models.InstitutionRecord, error)
}

// Service onboards institutions onto the registry contract and keeps the
// off-chain shadow reconciled with confirmed chain state.
type Service struct {
	registry *registry.Registry
	txs      *lifecycle.Manager
	records  InstitutionStore
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(reg *registry.Registry, txs *lifecycle.Manager, records InstitutionStore, opts ...Option) *Service {
	svc := &Service{
		registry: reg,
		txs:      txs,
		records:  records,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Onboard registers and verifies an institution in one workflow. Each step is
// idempotent: an institution already registered on-chain skips straight to
// verification, and a fully verified one completes without any submission.
// The verify step is never submitted before the registration confirms. If a
// step times out the shadow record stays pending and the result carries the
// transaction hash to poll.
func (s *Service) Onboard(ctx context.Context, admin common.Address, req models.OnboardRequest) (*models.OnboardResult, error) {
	if err := validateOnboard(req); err != nil {
		return nil, err
	}

	record := &models.InstitutionRecord{
		Address:      req.Address,
		Name:         req.Name,
		Website:      req.Website,
		Email:        req.Email,
		DocumentHash: req.DocumentHash,
		Status:       models.StatusPending,
	}
	if err := s.records.Upsert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist institution record")
	}

	steps := []lifecycle.Step{
		{
			Name: "register",
			Kind: lifecycle.KindRegister,
			From: admin,
			Skip: func(context.Context) (bool, error) {
				_, err := s.registry.GetInstitution(req.Address)
				return err == nil, nil
			},
			Call: chain.Call{
				Contract: registry.ContractName,
				Method:   "registerInstitution",
				Execute: func() error {
					return s.registry.RegisterInstitution(admin, req.Address, req.Name, req.Website, req.Email, req.DocumentHash)
				},
			},
		},
		{
			Name: "verify",
			Kind: lifecycle.KindVerify,
			From: admin,
			Skip: func(context.Context) (bool, error) {
				return s.registry.IsAuthorizedIssuer(req.Address), nil
			},
			Call: chain.Call{
				Contract: registry.ContractName,
				Method:   "verifyInstitution",
				Execute: func() error {
					return s.registry.VerifyInstitution(admin, req.Address)
				},
			},
		},
	}

	result, err := s.txs.RunWorkflow(ctx, "onboard-institution", steps)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "run onboarding workflow")
	}

	switch result.Status {
	case lifecycle.WorkflowCompleted:
		now := time.Now()
		for _, step := range result.Steps {
			if step.Skipped {
				continue
			}
			switch step.Name {
			case "register":
				record.RegisterTxHash = step.Tx.Hash
				record.RegisteredAt = &now
			case "verify":
				record.VerifyTxHash = step.Tx.Hash
				record.VerifiedAt = &now
			}
		}
		record.Status = models.StatusVerified
		if record.VerifiedAt == nil {
			record.VerifiedAt = &now
		}
		if err := s.records.Upsert(ctx, record); err != nil {
			s.logger.Error("failed to update institution shadow record",
				"institution", req.Address.Hex(), "error", err)
		}
		s.logger.Info("institution onboarded",
			"institution", req.Address.Hex(),
			"name", req.Name,
		)
		return &models.OnboardResult{Address: req.Address, Status: models.StatusVerified}, nil
	case lifecycle.WorkflowPending:
		// Partial success. The shadow record stays pending until CheckRegistration
		// observes the confirmation.
		return &models.OnboardResult{
			Address:       req.Address,
			Status:        models.StatusPending,
			PendingTxHash: result.PendingTx.Hash,
		}, nil
	default:
		return nil, revertToDomain(result.RevertReason)
	}
}

// CheckRegistration reconciles the shadow record with confirmed chain state
// and returns the reconciled view. The chain is authoritative: the shadow is
// upgraded, never the other way around.
func (s *Service) CheckRegistration(ctx context.Context, addr common.Address) (*models.InstitutionRecord, error) {
	record, err := s.records.FindByAddress(ctx, addr)
	shadowMissing := errors.Is(err, sentinel.ErrNotFound)
	if err != nil && !shadowMissing {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find institution record")
	}

	inst, chainErr := s.registry.GetInstitution(addr)
	if chainErr != nil {
		// Not on chain at all. A pending shadow stays pending, waiting for the
		// registration to land; anything else is unknown to us.
		if !shadowMissing && record.Status == models.StatusPending {
			return record, nil
		}
		return nil, dErrors.New(dErrors.CodeNotFound, "institution not found")
	}
	if shadowMissing {
		record = &models.InstitutionRecord{Address: addr, Name: inst.Name}
	}

	status := models.StatusRegistered
	if s.registry.IsAuthorizedIssuer(addr) {
		status = models.StatusVerified
	} else if record.Status == models.StatusRevoked {
		status = models.StatusRevoked
	}
	if record.Status != status {
		record.Name = inst.Name
		record.Status = status
		if err := s.records.Upsert(ctx, record); err != nil {
			s.logger.Error("failed to reconcile institution shadow record",
				"institution", addr.Hex(), "error", err)
		}
	}
	return record, nil
}

// Revoke removes the institution from the authorized issuer set. The shadow
// record is downgraded only after the transaction confirms.
func (s *Service) Revoke(ctx context.Context, admin, addr common.Address) error {
	call := chain.Call{
		Contract: registry.ContractName,
		Method:   "revokeInstitution",
		Execute: func() error {
			return s.registry.RevokeInstitution(admin, addr)
		},
	}

	outcome, err := s.txs.Run(ctx, lifecycle.KindRevoke, admin, call)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "submit institution revocation")
	}

	switch outcome.Status {
	case lifecycle.StatusConfirmed:
		if err := s.records.UpdateStatus(ctx, addr, models.StatusRevoked, time.Now()); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.Error("failed to mark institution revoked",
				"institution", addr.Hex(), "error", err)
		}
		s.logger.Info("institution revoked", "institution", addr.Hex())
		return nil
	case lifecycle.StatusTimedOut:
		return dErrors.New(dErrors.CodeTxPending, "revocation submitted but not yet confirmed")
	default:
		return revertToDomain(outcome.RevertReason)
	}
}

// GetInstitution returns the on-chain institution record.
func (s *Service) GetInstitution(addr common.Address) (registry.Institution, error) {
	inst, err := s.registry.GetInstitution(addr)
	if err != nil {
		return registry.Institution{}, dErrors.New(dErrors.CodeNotFound, "institution not found")
	}
	return inst, nil
}

// IsAuthorizedIssuer reports current authorized-set membership on-chain.
func (s *Service) IsAuthorizedIssuer(addr common.Address) bool {
	return s.registry.IsAuthorizedIssuer(addr)
}

// ListIssuers returns the current authorized issuer set. Order is not stable
// across revocations.
func (s *Service) ListIssuers() []common.Address {
	return s.registry.GetAllIssuers()
}

// Stats returns registry-wide counters.
func (s *Service) Stats() registry.Stats {
	return s.registry.GetInstitutionStats()
}

func validateOnboard(req models.OnboardRequest) error {
	if req.Address == (common.Address{}) {
		return dErrors.New(dErrors.CodeValidation, "institution address is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "institution name is required")
	}
	return nil
}

// revertToDomain translates a registry revert reason into a domain error.
func revertToDomain(reason string) error {
	var code dErrors.Code
	switch reason {
	case registry.ErrNotAdmin.Error():
		code = dErrors.CodeNotAdmin
	case registry.ErrNotOwner.Error():
		code = dErrors.CodeForbidden
	case registry.ErrAlreadyRegistered.Error():
		code = dErrors.CodeAlreadyRegistered
	case registry.ErrAlreadyVerified.Error():
		code = dErrors.CodeAlreadyVerified
	case registry.ErrNotRegistered.Error():
		code = dErrors.CodeNotFound
	case registry.ErrNotAuthorized.Error():
		code = dErrors.CodeForbidden
	case registry.ErrInvalidInput.Error():
		code = dErrors.CodeInvalidInput
	default:
		code = dErrors.CodeTxReverted
	}
	return dErrors.New(code, reason)
}
