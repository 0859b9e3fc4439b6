package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/chain"
	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/ledger"
	"github.com/Atmajo/credora-server/internal/lifecycle"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

// IssueCredential mints one credential. The metadata payload is stored
// content-addressed before any chain submission: a storage failure aborts the
// mint entirely, so the chain never references metadata that doesn't exist.
// The shadow record is written only after the transaction confirms.
func (s *Service) IssueCredential(ctx context.Context, issuer common.Address, req models.IssueRequest) (*models.IssueReceipt, error) {
	if err := validateIssue(issuer, req); err != nil {
		return nil, err
	}

	ref, err := s.metadata.Store(ctx, req.Metadata)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "store credential metadata")
	}
	tokenURI := req.TokenURI
	if tokenURI == "" {
		tokenURI, err = s.metadata.Resolve(ctx, ref)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve metadata ref")
		}
	}

	var tokenID uint64
	call := chain.Call{
		Contract: ledger.ContractName,
		Method:   "issueCredential",
		Execute: func() error {
			id, err := s.ledger.IssueCredential(issuer, ledger.IssueParams{
				Recipient:       req.Recipient,
				Type:            req.Type,
				InstitutionName: req.InstitutionName,
				ExpiresAt:       req.ExpiresAt,
				MetadataRef:     ref,
				TokenURI:        tokenURI,
			})
			tokenID = id
			return err
		},
	}

	outcome, err := s.txs.Run(ctx, lifecycle.KindIssue, issuer, call)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "submit issuance")
	}

	switch outcome.Status {
	case lifecycle.StatusConfirmed:
		record := &models.CredentialRecord{
			TokenID:         tokenID,
			Issuer:          issuer,
			Recipient:       req.Recipient,
			Type:            req.Type,
			InstitutionName: req.InstitutionName,
			IssuedAt:        time.Now(),
			ExpiresAt:       req.ExpiresAt,
			MetadataRef:     ref,
			TokenURI:        tokenURI,
			TxHash:          outcome.Tx.Hash,
			BlockNumber:     outcome.Tx.BlockNumber,
		}
		if err := s.records.UpsertCredential(ctx, record); err != nil {
			// Chain state is authoritative; a shadow write failure is not a
			// failed issuance. CheckStatus reconciles later.
			s.logger.Error("failed to write credential shadow record",
				"token_id", tokenID, "tx_hash", outcome.Tx.Hash.Hex(), "error", err)
		}
		if s.metrics != nil {
			s.metrics.IncrementIssued(string(req.Type))
		}
		s.logger.Info("credential issued",
			"token_id", tokenID,
			"issuer", issuer.Hex(),
			"recipient", req.Recipient.Hex(),
			"tx_hash", outcome.Tx.Hash.Hex(),
		)
		return &models.IssueReceipt{
			TokenID:     tokenID,
			TxHash:      outcome.Tx.Hash,
			BlockNumber: outcome.Tx.BlockNumber,
			Status:      StatusConfirmed,
			MetadataRef: ref,
		}, nil
	case lifecycle.StatusTimedOut:
		// Partial success: the transaction may still land. The caller polls
		// the hash; no shadow record is written yet.
		return &models.IssueReceipt{
			TxHash:      outcome.Tx.Hash,
			Status:      StatusPending,
			MetadataRef: ref,
		}, nil
	default:
		return nil, revertToDomain(outcome.RevertReason)
	}
}

// BatchIssueCredentials mints one credential per recipient in a single
// atomic transaction. Length mismatches fail before any metadata is stored
// or any chain call is made.
func (s *Service) BatchIssueCredentials(ctx context.Context, issuer common.Address, req models.BatchIssueRequest) (*models.BatchIssueReceipt, error) {
	n := len(req.Recipients)
	if n == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch must contain at least one recipient")
	}
	if len(req.Types) != n || len(req.Metadata) != n || len(req.TokenURIs) != n {
		return nil, dErrors.New(dErrors.CodeLengthMismatch, "recipients, types, metadata, and token URIs must be the same length")
	}
	for i := range req.Recipients {
		if err := validateIssue(issuer, models.IssueRequest{
			Recipient:       req.Recipients[i],
			Type:            req.Types[i],
			InstitutionName: req.InstitutionName,
			Metadata:        req.Metadata[i],
		}); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("batch item %d", i))
		}
	}

	refs := make([]string, n)
	uris := make([]string, n)
	for i := range req.Metadata {
		ref, err := s.metadata.Store(ctx, req.Metadata[i])
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, fmt.Sprintf("store metadata for batch item %d", i))
		}
		refs[i] = ref
		uris[i] = req.TokenURIs[i]
		if uris[i] == "" {
			uris[i], err = s.metadata.Resolve(ctx, ref)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve metadata ref")
			}
		}
	}

	var tokenIDs []uint64
	call := chain.Call{
		Contract: ledger.ContractName,
		Method:   "batchIssueCredentials",
		Execute: func() error {
			ids, err := s.ledger.BatchIssueCredentials(issuer, req.Recipients, req.Types, req.InstitutionName, req.ExpiresAt, refs, uris)
			tokenIDs = ids
			return err
		},
	}

	outcome, err := s.txs.Run(ctx, lifecycle.KindIssue, issuer, call)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "submit batch issuance")
	}

	switch outcome.Status {
	case lifecycle.StatusConfirmed:
		now := time.Now()
		for i, tokenID := range tokenIDs {
			record := &models.CredentialRecord{
				TokenID:         tokenID,
				Issuer:          issuer,
				Recipient:       req.Recipients[i],
				Type:            req.Types[i],
				InstitutionName: req.InstitutionName,
				IssuedAt:        now,
				ExpiresAt:       req.ExpiresAt,
				MetadataRef:     refs[i],
				TokenURI:        uris[i],
				TxHash:          outcome.Tx.Hash,
				BlockNumber:     outcome.Tx.BlockNumber,
			}
			if err := s.records.UpsertCredential(ctx, record); err != nil {
				s.logger.Error("failed to write credential shadow record",
					"token_id", tokenID, "tx_hash", outcome.Tx.Hash.Hex(), "error", err)
			}
			if s.metrics != nil {
				s.metrics.IncrementIssued(string(req.Types[i]))
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveBatchSize(n)
		}
		s.logger.Info("credential batch issued",
			"count", n,
			"issuer", issuer.Hex(),
			"tx_hash", outcome.Tx.Hash.Hex(),
		)
		return &models.BatchIssueReceipt{
			TokenIDs:     tokenIDs,
			TxHash:       outcome.Tx.Hash,
			BlockNumber:  outcome.Tx.BlockNumber,
			Status:       StatusConfirmed,
			MetadataRefs: refs,
		}, nil
	case lifecycle.StatusTimedOut:
		return &models.BatchIssueReceipt{
			TxHash:       outcome.Tx.Hash,
			Status:       StatusPending,
			MetadataRefs: refs,
		}, nil
	default:
		return nil, revertToDomain(outcome.RevertReason)
	}
}

func validateIssue(issuer common.Address, req models.IssueRequest) error {
	if issuer == (common.Address{}) {
		return dErrors.New(dErrors.CodeValidation, "issuer address is required")
	}
	if req.Recipient == (common.Address{}) {
		return dErrors.New(dErrors.CodeValidation, "recipient address is required")
	}
	if _, err := ledger.ParseCredentialType(string(req.Type)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid credential type")
	}
	if req.InstitutionName == "" {
		return dErrors.New(dErrors.CodeValidation, "institution name is required")
	}
	if len(req.Metadata) == 0 {
		return dErrors.New(dErrors.CodeValidation, "metadata payload is required")
	}
	return nil
}
