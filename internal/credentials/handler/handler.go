package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/ledger"
	"github.com/Atmajo/credora-server/internal/platform/middleware"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
	"github.com/Atmajo/credora-server/pkg/ethutil"
	"github.com/Atmajo/credora-server/pkg/platform/httputil"
)

// Service defines the interface for credential operations.
// Returns domain objects, not HTTP response DTOs.
type Service interface {
	IssueCredential(ctx context.Context, issuer common.Address, req models.IssueRequest) (*models.IssueReceipt, error)
	BatchIssueCredentials(ctx context.Context, issuer common.Address, req models.BatchIssueRequest) (*models.BatchIssueReceipt, error)
	RevokeCredential(ctx context.Context, issuer common.Address, tokenID uint64) (*models.IssueReceipt, error)
	TransferCredential(ctx context.Context, owner, to common.Address, tokenID uint64) (*models.IssueReceipt, error)
	VerifyCredential(ctx context.Context, verifier common.Address, tokenID uint64) *models.Verification
	BatchVerifyCredentials(ctx context.Context, verifier common.Address, tokenIDs []uint64) []*models.Verification
	QuickVerify(tokenID uint64) bool
	QuickBatchVerify(tokenIDs []uint64) []bool
	VerifyOwnership(tokenID uint64, claimedOwner common.Address) bool
	VerifyIssuer(tokenID uint64, institution common.Address) bool
	GetCredential(ctx context.Context, tokenID uint64) (*models.CredentialRecord, error)
	ListByRecipient(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error)
	ListByIssuer(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error)
	CurrentHoldings(addr common.Address) []uint64
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts routes that require an authenticated wallet.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.HandleIssue)
	r.Post("/credentials/batch", h.HandleBatchIssue)
	r.Post("/credentials/{tokenID}/revoke", h.HandleRevoke)
	r.Post("/credentials/{tokenID}/transfer", h.HandleTransfer)
	r.Get("/credentials/{tokenID}/verify", h.HandleVerify)
	r.Post("/credentials/verify-batch", h.HandleBatchVerify)
}

// RegisterPublic mounts unauthenticated read-only routes. Quick verification
// is deliberately open so anyone holding a token id can check validity.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/credentials/{tokenID}", h.HandleGet)
	r.Get("/credentials/{tokenID}/quick-verify", h.HandleQuickVerify)
	r.Post("/credentials/quick-verify-batch", h.HandleQuickBatchVerify)
	r.Get("/credentials/{tokenID}/ownership", h.HandleVerifyOwnership)
	r.Get("/credentials/{tokenID}/issued-by", h.HandleVerifyIssuer)
	r.Get("/recipients/{address}/credentials", h.HandleListByRecipient)
	r.Get("/issuers/{address}/credentials", h.HandleListByIssuer)
	r.Get("/holders/{address}/tokens", h.HandleCurrentHoldings)
}

func tokenIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "tokenID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid token id")
	}
	return id, nil
}

func addressParam(r *http.Request) (common.Address, error) {
	addr, err := ethutil.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return common.Address{}, dErrors.New(dErrors.CodeBadRequest, "invalid address")
	}
	return addr, nil
}

func receiptStatusCode(status string) int {
	if status == "pending" {
		return http.StatusAccepted
	}
	return http.StatusCreated
}

// HandleIssue mints a credential NFT for the caller's institution.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	ident, ok := middleware.CallerIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[IssueCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	recipient, _ := ethutil.ParseAddress(req.Recipient)
	receipt, err := h.service.IssueCredential(ctx, ident.Address, models.IssueRequest{
		Recipient:       recipient,
		Type:            ledger.CredentialType(req.Type),
		InstitutionName: req.InstitutionName,
		ExpiresAt:       req.ExpiresAt,
		Metadata:        []byte(req.Metadata),
		TokenURI:        req.TokenURI,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "issue credential failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, receiptStatusCode(receipt.Status), toIssueResponse(receipt))
}

// HandleBatchIssue mints several credentials in one atomic transaction.
func (h *Handler) HandleBatchIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	ident, ok := middleware.CallerIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[BatchIssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	recipients := make([]common.Address, len(req.Recipients))
	for i, raw := range req.Recipients {
		recipients[i], _ = ethutil.ParseAddress(raw)
	}
	types := make([]ledger.CredentialType, len(req.Types))
	for i, t := range req.Types {
		types[i] = ledger.CredentialType(t)
	}
	metadata := make([][]byte, len(req.Metadata))
	for i, m := range req.Metadata {
		metadata[i] = []byte(m)
	}

	receipt, err := h.service.BatchIssueCredentials(ctx, ident.Address, models.BatchIssueRequest{
		Recipients:      recipients,
		Types:           types,
		InstitutionName: req.InstitutionName,
		ExpiresAt:       req.ExpiresAt,
		Metadata:        metadata,
		TokenURIs:       req.TokenURIs,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "batch issue failed", "error", err, "request_id", requestID, "batch_size", len(req.Recipients))
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, receiptStatusCode(receipt.Status), toBatchIssueResponse(receipt))
}

// HandleRevoke marks a credential revoked on-chain. Only the issuing
// institution may revoke, regardless of who currently holds the token.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	ident, ok := middleware.CallerIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	tokenID, err := tokenIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.service.RevokeCredential(ctx, ident.Address, tokenID)
	if err != nil {
		h.logger.ErrorContext(ctx, "revoke credential failed", "error", err, "request_id", requestID, "token_id", tokenID)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if receipt.Status == "pending" {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, toIssueResponse(receipt))
}

// HandleTransfer moves token ownership to another wallet.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	ident, ok := middleware.CallerIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	tokenID, err := tokenIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	to, _ := ethutil.ParseAddress(req.To)
	receipt, err := h.service.TransferCredential(ctx, ident.Address, to, tokenID)
	if err != nil {
		h.logger.ErrorContext(ctx, "transfer credential failed", "error", err, "request_id", requestID, "token_id", tokenID)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if receipt.Status == "pending" {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, toIssueResponse(receipt))
}

// HandleVerify returns the full verification verdict for one token. The
// caller's wallet is recorded as the verifier for on-chain counters.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, ok := middleware.CallerIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	tokenID, err := tokenIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	verdict := h.service.VerifyCredential(ctx, ident.Address, tokenID)
	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(verdict))
}

// HandleBatchVerify verifies a set of tokens in one call. Verdicts come back
// in request order; unknown tokens yield a not-found verdict, not an error.
func (h *Handler) HandleBatchVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	ident, ok := middleware.CallerIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[BatchVerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	verdicts := h.service.BatchVerifyCredentials(ctx, ident.Address, req.TokenIDs)
	httputil.WriteJSON(w, http.StatusOK, toVerificationListResponse(verdicts))
}

// HandleGet returns the shadow record for one token.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenID, err := tokenIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.GetCredential(ctx, tokenID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(rec))
}

// HandleQuickVerify answers the single question "is this credential valid
// right now" with a bare boolean.
func (h *Handler) HandleQuickVerify(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"valid": h.service.QuickVerify(tokenID)})
}

func (h *Handler) HandleQuickBatchVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchVerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string][]bool{"valid": h.service.QuickBatchVerify(req.TokenIDs)})
}

// HandleVerifyOwnership checks that a wallet currently owns a token.
func (h *Handler) HandleVerifyOwnership(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	owner, err := ethutil.ParseAddress(r.URL.Query().Get("address"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "address query parameter must be a hex address"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"owned": h.service.VerifyOwnership(tokenID, owner)})
}

// HandleVerifyIssuer checks that a token was minted by the given institution.
func (h *Handler) HandleVerifyIssuer(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	inst, err := ethutil.ParseAddress(r.URL.Query().Get("institution"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "institution query parameter must be a hex address"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"issued": h.service.VerifyIssuer(tokenID, inst)})
}

func (h *Handler) HandleListByRecipient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := addressParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	recs, err := h.service.ListByRecipient(ctx, addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialListResponse(recs))
}

func (h *Handler) HandleListByIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := addressParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	recs, err := h.service.ListByIssuer(ctx, addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialListResponse(recs))
}

// HandleCurrentHoldings lists token ids currently owned by a wallet, straight
// from chain state.
func (h *Handler) HandleCurrentHoldings(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ids := h.service.CurrentHoldings(addr)
	if ids == nil {
		ids = []uint64{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]uint64{"token_ids": ids})
}
