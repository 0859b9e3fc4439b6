package service

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/sentinel"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

// GetCredential returns the shadow record for a token id.
func (s *Service) GetCredential(ctx context.Context, tokenID uint64) (*models.CredentialRecord, error) {
	record, err := s.records.FindByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find credential")
	}
	return record, nil
}

// ListByRecipient returns all credentials minted to addr, as issued. Current
// holdings after transfers come from the chain, not from here.
func (s *Service) ListByRecipient(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error) {
	if addr == (common.Address{}) {
		return nil, dErrors.New(dErrors.CodeValidation, "recipient address is required")
	}
	records, err := s.records.FindByRecipient(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list credentials by recipient")
	}
	return records, nil
}

// ListByIssuer returns all credentials minted by addr.
func (s *Service) ListByIssuer(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error) {
	if addr == (common.Address{}) {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer address is required")
	}
	records, err := s.records.FindByIssuer(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list credentials by issuer")
	}
	return records, nil
}

// CurrentHoldings returns the token ids addr holds right now, from the chain.
func (s *Service) CurrentHoldings(addr common.Address) []uint64 {
	return s.ledger.GetUserCredentials(addr)
}
