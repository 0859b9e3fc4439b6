package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Atmajo/credora-server/internal/institutions/models"
	"github.com/Atmajo/credora-server/internal/platform/middleware"
	"github.com/Atmajo/credora-server/internal/registry"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
	"github.com/Atmajo/credora-server/pkg/ethutil"
	"github.com/Atmajo/credora-server/pkg/platform/httputil"
)

// Service defines the interface for institution operations.
// Returns domain objects, not HTTP response DTOs.
type Service interface {
	Onboard(ctx context.Context, admin common.Address, req models.OnboardRequest) (*models.OnboardResult, error)
	CheckRegistration(ctx context.Context, addr common.Address) (*models.InstitutionRecord, error)
	Revoke(ctx context.Context, admin, addr common.Address) error
	GetInstitution(addr common.Address) (registry.Institution, error)
	IsAuthorizedIssuer(addr common.Address) bool
	ListIssuers() []common.Address
	Stats() registry.Stats
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts routes restricted to platform admins.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/institutions", h.HandleOnboard)
	r.Post("/institutions/{address}/revoke", h.HandleRevoke)
}

// RegisterPublic mounts unauthenticated read-only routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/institutions/{address}", h.HandleCheckRegistration)
	r.Get("/institutions/{address}/authorized", h.HandleIsAuthorized)
	r.Get("/institutions", h.HandleListIssuers)
	r.Get("/institutions/stats", h.HandleStats)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type OnboardInstitutionRequest struct {
	Address      string `json:"address" validate:"required"`
	Name         string `json:"name" validate:"required,max=200"`
	Website      string `json:"website,omitempty" validate:"omitempty,url"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	DocumentHash string `json:"document_hash,omitempty" validate:"omitempty,hexadecimal"`
}

func (r *OnboardInstitutionRequest) Normalize() {
	if r == nil {
		return
	}
	r.Address = strings.TrimSpace(r.Address)
	r.Name = strings.TrimSpace(r.Name)
	r.Website = strings.TrimSpace(r.Website)
	r.Email = strings.TrimSpace(strings.ToLower(r.Email))
	r.DocumentHash = strings.TrimSpace(r.DocumentHash)
}

func (r *OnboardInstitutionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := ethutil.ParseAddress(r.Address); err != nil {
		return dErrors.New(dErrors.CodeValidation, "address must be a hex address")
	}
	if err := validate.Struct(r); err != nil {
		return dErrors.New(dErrors.CodeValidation, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return strings.ToLower(fe.Field()) + " failed " + fe.Tag() + " validation"
	}
	return "invalid request"
}

type InstitutionResponse struct {
	Address        string  `json:"address"`
	Name           string  `json:"name"`
	Website        string  `json:"website,omitempty"`
	Email          string  `json:"email,omitempty"`
	DocumentHash   string  `json:"document_hash,omitempty"`
	Status         string  `json:"status"`
	RegisterTxHash string  `json:"register_tx_hash,omitempty"`
	VerifyTxHash   string  `json:"verify_tx_hash,omitempty"`
	RegisteredAt   *string `json:"registered_at,omitempty"`
	VerifiedAt     *string `json:"verified_at,omitempty"`
}

func toInstitutionResponse(rec *models.InstitutionRecord) *InstitutionResponse {
	resp := &InstitutionResponse{
		Address:      rec.Address.Hex(),
		Name:         rec.Name,
		Website:      rec.Website,
		Email:        rec.Email,
		DocumentHash: rec.DocumentHash,
		Status:       string(rec.Status),
	}
	if (rec.RegisterTxHash != common.Hash{}) {
		resp.RegisterTxHash = rec.RegisterTxHash.Hex()
	}
	if (rec.VerifyTxHash != common.Hash{}) {
		resp.VerifyTxHash = rec.VerifyTxHash.Hex()
	}
	if rec.RegisteredAt != nil {
		at := rec.RegisteredAt.UTC().Format(time.RFC3339)
		resp.RegisteredAt = &at
	}
	if rec.VerifiedAt != nil {
		at := rec.VerifiedAt.UTC().Format(time.RFC3339)
		resp.VerifiedAt = &at
	}
	return resp
}

type OnboardResponse struct {
	Address       string `json:"address"`
	Status        string `json:"status"`
	PendingTxHash string `json:"pending_tx_hash,omitempty"`
}

// HandleOnboard registers and verifies an institution in one workflow. A
// partially confirmed workflow returns 202 with the transaction to poll.
func (h *Handler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	ident, ok := middleware.CallerIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[OnboardInstitutionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	addr, _ := ethutil.ParseAddress(req.Address)
	result, err := h.service.Onboard(ctx, ident.Address, models.OnboardRequest{
		Address:      addr,
		Name:         req.Name,
		Website:      req.Website,
		Email:        req.Email,
		DocumentHash: req.DocumentHash,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "onboard institution failed", "error", err, "request_id", requestID, "institution", req.Address)
		httputil.WriteError(w, err)
		return
	}

	resp := &OnboardResponse{
		Address: result.Address.Hex(),
		Status:  string(result.Status),
	}
	status := http.StatusCreated
	if result.Status == models.StatusPending {
		status = http.StatusAccepted
		resp.PendingTxHash = result.PendingTxHash.Hex()
	}
	httputil.WriteJSON(w, status, resp)
}

// HandleCheckRegistration reconciles the shadow record with chain state and
// returns the institution's current standing.
func (h *Handler) HandleCheckRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := ethutil.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	rec, err := h.service.CheckRegistration(ctx, addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toInstitutionResponse(rec))
}

// HandleRevoke removes an institution's issuing authority.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	ident, ok := middleware.CallerIdentity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	addr, err := ethutil.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	if err := h.service.Revoke(ctx, ident.Address, addr); err != nil {
		h.logger.ErrorContext(ctx, "revoke institution failed", "error", err, "request_id", requestID, "institution", addr.Hex())
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusRevoked)})
}

func (h *Handler) HandleIsAuthorized(w http.ResponseWriter, r *http.Request) {
	addr, err := ethutil.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"authorized": h.service.IsAuthorizedIssuer(addr)})
}

// HandleListIssuers lists every currently authorized issuer address.
func (h *Handler) HandleListIssuers(w http.ResponseWriter, _ *http.Request) {
	addrs := h.service.ListIssuers()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"issuers": out})
}

type StatsResponse struct {
	TotalRegistered        int    `json:"total_registered"`
	TotalVerified          int    `json:"total_verified"`
	TotalCredentialsIssued uint64 `json:"total_credentials_issued"`
}

func (h *Handler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.service.Stats()
	httputil.WriteJSON(w, http.StatusOK, &StatsResponse{
		TotalRegistered:        stats.TotalRegistered,
		TotalVerified:          stats.TotalVerified,
		TotalCredentialsIssued: stats.TotalCredentialsIssued,
	})
}
