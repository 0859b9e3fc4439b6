package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/aggregator"
	"github.com/Atmajo/credora-server/internal/credentials/metrics"
	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/ledger"
	"github.com/Atmajo/credora-server/internal/lifecycle"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

// CredentialStore defines the persistence interface for credential shadow
// records. Error contract: all Find methods return sentinel.ErrNotFound when
// the record doesn't exist.
type CredentialStore interface {
	UpsertCredential(ctx context.Context, record *models.CredentialRecord) error
	FindByTokenID(ctx context.Context, tokenID uint64) (*models.CredentialRecord, error)
	FindByRecipient(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error)
	FindByIssuer(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error)
	MarkRevoked(ctx context.Context, tokenID uint64, at time.Time) error
	IncrementVerificationCount(ctx context.Context, tokenID uint64) error
}

// MetadataStore is the content-addressed payload store consulted before any
// chain submission.
type MetadataStore interface {
	Store(ctx context.Context, payload []byte) (string, error)
	Resolve(ctx context.Context, ref string) (string, error)
}

const (
	StatusConfirmed = "confirmed"
	StatusPending   = "pending"

	defaultEnrichWorkers = 8
)

// Service coordinates credential issuance, revocation, and verification
// across the on-chain contracts and the off-chain shadow store. Chain state
// is authoritative throughout; the shadow store is written only after
// confirmation.
type Service struct {
	ledger        *ledger.Ledger
	verifier      *aggregator.Aggregator
	txs           *lifecycle.Manager
	records       CredentialStore
	metadata      MetadataStore
	logger        *slog.Logger
	metrics       *metrics.Metrics
	enrichWorkers int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEnrichWorkers bounds the concurrency of batch shadow enrichment.
func WithEnrichWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.enrichWorkers = n
		}
	}
}

func NewService(l *ledger.Ledger, verifier *aggregator.Aggregator, txs *lifecycle.Manager, records CredentialStore, metadata MetadataStore, opts ...Option) *Service {
	svc := &Service{
		ledger:        l,
		verifier:      verifier,
		txs:           txs,
		records:       records,
		metadata:      metadata,
		enrichWorkers: defaultEnrichWorkers,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// revertToDomain translates an on-chain revert reason into a domain error.
// Translation happens here, once, so handlers never inspect reason strings.
func revertToDomain(reason string) error {
	var code dErrors.Code
	switch reason {
	case ledger.ErrNotAuthorizedIssuer.Error():
		code = dErrors.CodeNotAuthorizedIssuer
	case ledger.ErrNotFound.Error():
		code = dErrors.CodeNotFound
	case ledger.ErrNotIssuer.Error():
		code = dErrors.CodeNotIssuer
	case ledger.ErrAlreadyRevoked.Error():
		code = dErrors.CodeAlreadyRevoked
	case ledger.ErrLengthMismatch.Error():
		code = dErrors.CodeLengthMismatch
	case ledger.ErrInvalidInput.Error():
		code = dErrors.CodeInvalidInput
	case ledger.ErrNotOwner.Error():
		code = dErrors.CodeForbidden
	default:
		code = dErrors.CodeTxReverted
	}
	return dErrors.New(code, reason)
}
