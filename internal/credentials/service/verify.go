package service

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Atmajo/credora-server/internal/aggregator"
	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

// VerifyCredential runs the full on-chain verification and enriches the
// verdict with advisory shadow data. The chain verdict is authoritative: when
// the shadow record disagrees, the response reports the chain's view and
// flags the shadow as stale.
func (s *Service) VerifyCredential(ctx context.Context, verifier common.Address, tokenID uint64) *models.Verification {
	result := s.verifier.VerifyCredentialDetailed(verifier, tokenID)
	if s.metrics != nil {
		s.metrics.IncrementVerification(result.Message)
	}
	return s.enrich(ctx, result)
}

// BatchVerifyCredentials verifies every token id independently; one bad id
// never aborts the rest, and results come back in input order.
func (s *Service) BatchVerifyCredentials(ctx context.Context, verifier common.Address, tokenIDs []uint64) []*models.Verification {
	results := s.verifier.BatchVerifyCredentials(verifier, tokenIDs)
	if s.metrics != nil {
		for _, result := range results {
			s.metrics.IncrementVerification(result.Message)
		}
	}

	out := make([]*models.Verification, len(results))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.enrichWorkers)
	for i, result := range results {
		g.Go(func() error {
			out[i] = s.enrich(ctx, result)
			return nil
		})
	}
	// Workers never return errors; enrichment failures degrade to a bare
	// chain verdict.
	_ = g.Wait()
	return out
}

// QuickVerify answers the one-bit validity question. It never errors and
// moves no counters.
func (s *Service) QuickVerify(tokenID uint64) bool {
	return s.verifier.QuickVerify(tokenID)
}

// QuickBatchVerify answers validity for each token id in input order.
func (s *Service) QuickBatchVerify(tokenIDs []uint64) []bool {
	return s.verifier.QuickBatchVerify(tokenIDs)
}

// VerifyOwnership reports whether claimedOwner currently holds the token.
func (s *Service) VerifyOwnership(tokenID uint64, claimedOwner common.Address) bool {
	return s.verifier.VerifyOwnership(tokenID, claimedOwner)
}

// VerifyIssuer reports whether institution issued the token.
func (s *Service) VerifyIssuer(tokenID uint64, institution common.Address) bool {
	return s.verifier.VerifyIssuer(tokenID, institution)
}

func (s *Service) enrich(ctx context.Context, result aggregator.Result) *models.Verification {
	v := &models.Verification{
		TokenID:          result.TokenID,
		Exists:           result.Exists,
		IsValid:          result.IsValid,
		Revoked:          result.Revoked,
		Expired:          result.Expired,
		IssuerAuthorized: result.IssuerAuthorized,
		Issuer:           result.Issuer,
		Recipient:        result.Recipient,
		Owner:            result.Owner,
		Type:             result.Type,
		InstitutionName:  result.InstitutionName,
		IssuedAt:         result.IssuedAt,
		ExpiresAt:        result.ExpiresAt,
		Message:          result.Message,
	}
	if !result.Exists {
		return v
	}

	record, err := s.records.FindByTokenID(ctx, result.TokenID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.Warn("shadow lookup failed during verification",
				"token_id", result.TokenID, "error", err)
		}
		return v
	}

	shadow := &models.ShadowInfo{
		TxHash:            record.TxHash,
		BlockNumber:       record.BlockNumber,
		TokenURI:          record.TokenURI,
		VerificationCount: record.VerificationCount,
	}
	if record.Revoked != result.Revoked {
		shadow.Stale = true
		if s.metrics != nil {
			s.metrics.IncrementShadowInconsistency()
		}
		s.logger.Warn("shadow record disagrees with chain state",
			"token_id", result.TokenID,
			"shadow_revoked", record.Revoked,
			"chain_revoked", result.Revoked,
		)
	}
	v.Shadow = shadow

	if err := s.records.IncrementVerificationCount(ctx, result.TokenID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.Warn("failed to bump shadow verification count",
			"token_id", result.TokenID, "error", err)
	}
	return v
}
