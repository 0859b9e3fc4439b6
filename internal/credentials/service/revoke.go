package service

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/chain"
	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/ledger"
	"github.com/Atmajo/credora-server/internal/lifecycle"
	"github.com/Atmajo/credora-server/internal/sentinel"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

// RevokeCredential revokes a credential on-chain. Only the original issuer
// may revoke, and revocation survives transfers. The shadow record is marked
// revoked only after the transaction confirms.
func (s *Service) RevokeCredential(ctx context.Context, issuer common.Address, tokenID uint64) (*models.IssueReceipt, error) {
	if issuer == (common.Address{}) {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer address is required")
	}

	call := chain.Call{
		Contract: ledger.ContractName,
		Method:   "revokeCredential",
		Execute: func() error {
			return s.ledger.RevokeCredential(issuer, tokenID)
		},
	}

	outcome, err := s.txs.Run(ctx, lifecycle.KindRevoke, issuer, call)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "submit revocation")
	}

	switch outcome.Status {
	case lifecycle.StatusConfirmed:
		if err := s.records.MarkRevoked(ctx, tokenID, time.Now()); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.Error("failed to mark shadow record revoked",
				"token_id", tokenID, "error", err)
		}
		if s.metrics != nil {
			s.metrics.IncrementRevoked()
		}
		s.logger.Info("credential revoked",
			"token_id", tokenID,
			"issuer", issuer.Hex(),
			"tx_hash", outcome.Tx.Hash.Hex(),
		)
		return &models.IssueReceipt{
			TokenID:     tokenID,
			TxHash:      outcome.Tx.Hash,
			BlockNumber: outcome.Tx.BlockNumber,
			Status:      StatusConfirmed,
		}, nil
	case lifecycle.StatusTimedOut:
		return &models.IssueReceipt{
			TokenID: tokenID,
			TxHash:  outcome.Tx.Hash,
			Status:  StatusPending,
		}, nil
	default:
		return nil, revertToDomain(outcome.RevertReason)
	}
}

// TransferCredential moves a credential to a new holder. Ownership changes;
// the issuance record, including the issuer's revocation rights, does not.
func (s *Service) TransferCredential(ctx context.Context, owner, to common.Address, tokenID uint64) (*models.IssueReceipt, error) {
	if owner == (common.Address{}) || to == (common.Address{}) {
		return nil, dErrors.New(dErrors.CodeValidation, "owner and recipient addresses are required")
	}

	call := chain.Call{
		Contract: ledger.ContractName,
		Method:   "transferCredential",
		Execute: func() error {
			return s.ledger.TransferCredential(owner, to, tokenID)
		},
	}

	outcome, err := s.txs.Run(ctx, lifecycle.KindTransfer, owner, call)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "submit transfer")
	}

	switch outcome.Status {
	case lifecycle.StatusConfirmed:
		s.logger.Info("credential transferred",
			"token_id", tokenID,
			"from", owner.Hex(),
			"to", to.Hex(),
			"tx_hash", outcome.Tx.Hash.Hex(),
		)
		return &models.IssueReceipt{
			TokenID:     tokenID,
			TxHash:      outcome.Tx.Hash,
			BlockNumber: outcome.Tx.BlockNumber,
			Status:      StatusConfirmed,
		}, nil
	case lifecycle.StatusTimedOut:
		return &models.IssueReceipt{
			TokenID: tokenID,
			TxHash:  outcome.Tx.Hash,
			Status:  StatusPending,
		}, nil
	default:
		return nil, revertToDomain(outcome.RevertReason)
	}
}
