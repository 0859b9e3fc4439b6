package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/Atmajo/credora-server/internal/lifecycle"
	"github.com/Atmajo/credora-server/internal/platform/middleware"
	"github.com/Atmajo/credora-server/internal/sentinel"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
	"github.com/Atmajo/credora-server/pkg/ethutil"
	"github.com/Atmajo/credora-server/pkg/platform/httputil"
)

// Manager defines the lifecycle operations the transport needs.
type Manager interface {
	CheckStatus(ctx context.Context, hash common.Hash) (*lifecycle.PendingTransaction, error)
}

type Handler struct {
	manager Manager
	logger  *slog.Logger
}

func New(manager Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/transactions/{hash}", h.HandleCheckStatus)
}

type TransactionResponse struct {
	Hash        string `json:"hash"`
	Kind        string `json:"kind"`
	From        string `json:"from"`
	Status      string `json:"status"`
	GasEstimate uint64 `json:"gas_estimate"`
	SubmittedAt string `json:"submitted_at"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// HandleCheckStatus reports the current lifecycle state of a submitted
// transaction, re-checking the chain for records that timed out.
func (h *Handler) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	hash, err := ethutil.ParseTxHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid transaction hash"))
		return
	}

	tx, err := h.manager.CheckStatus(ctx, hash)
	if err != nil {
		h.logger.ErrorContext(ctx, "transaction status check failed", "error", err, "request_id", requestID, "hash", hash.Hex())
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "transaction not found"))
		case errors.Is(err, sentinel.ErrUnavailable):
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "chain node unavailable"))
		default:
			httputil.WriteError(w, err)
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &TransactionResponse{
		Hash:        tx.Hash.Hex(),
		Kind:        string(tx.Kind),
		From:        tx.From.Hex(),
		Status:      string(tx.Status),
		GasEstimate: tx.GasEstimate,
		SubmittedAt: tx.SubmittedAt.UTC().Format(time.RFC3339),
		BlockNumber: tx.BlockNumber,
		Reason:      tx.Reason,
	})
}
