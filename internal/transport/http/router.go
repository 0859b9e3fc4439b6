// Package httptransport wires the public HTTP surface: routing, middleware,
// and the thin handlers that have no domain package of their own.
package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Atmajo/credora-server/internal/chain"
	credhandler "github.com/Atmajo/credora-server/internal/credentials/handler"
	"github.com/Atmajo/credora-server/internal/events"
	insthandler "github.com/Atmajo/credora-server/internal/institutions/handler"
	txhandler "github.com/Atmajo/credora-server/internal/lifecycle/handler"
	"github.com/Atmajo/credora-server/internal/platform/health"
	"github.com/Atmajo/credora-server/internal/platform/middleware"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
	"github.com/Atmajo/credora-server/pkg/platform/httputil"
)

// Handler serves the transport-level endpoints: contract events and chain
// introspection. Everything with real business logic lives in the per-domain
// handler packages.
type Handler struct {
	events  *events.Log
	backend chain.Backend
	blockFn func() uint64
	logger  *slog.Logger
}

func NewHandler(eventLog *events.Log, backend chain.Backend, blockFn func() uint64, logger *slog.Logger) *Handler {
	return &Handler{events: eventLog, backend: backend, blockFn: blockFn, logger: logger}
}

// Deps collects everything the router mounts.
type Deps struct {
	Credentials  *credhandler.Handler
	Institutions *insthandler.Handler
	Transactions *txhandler.Handler
	Transport    *Handler
	Health       *health.Handler
	Auth         func(http.Handler) http.Handler
	Admin        func(http.Handler) http.Handler
	Logger       *slog.Logger
}

// NewRouter wires all endpoints with the shared middleware stack. Routes are
// split into public reads, authenticated wallet operations, and admin-only
// institution management.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(90 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	d.Health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		d.Credentials.RegisterPublic(r)
		d.Institutions.RegisterPublic(r)
		d.Transactions.Register(r)
		r.Get("/events", d.Transport.HandleEvents)
		r.Get("/chain/head", d.Transport.HandleChainHead)
		r.Get("/chain/gas-estimate", d.Transport.HandleGasEstimate)
	})

	r.Group(func(r chi.Router) {
		r.Use(d.Auth)
		d.Credentials.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(d.Auth)
		r.Use(d.Admin)
		d.Institutions.RegisterAdmin(r)
	})

	return r
}

// HandleEvents queries the contract event log by contract name and an
// optional block range.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	contract := q.Get("contract")
	if contract == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "contract query parameter is required"))
		return
	}

	from, err := blockParam(q.Get("from"), 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := blockParam(q.Get("to"), h.blockFn())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	evs := h.events.Query(contract, from, to)
	if evs == nil {
		evs = []events.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func blockParam(raw string, fallback uint64) (uint64, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "block numbers must be unsigned integers")
	}
	return n, nil
}

// HandleChainHead reports the current chain height.
func (h *Handler) HandleChainHead(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"block_number": h.blockFn()})
}

// HandleGasEstimate prices a contract call without executing it.
func (h *Handler) HandleGasEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	contract := q.Get("contract")
	method := q.Get("method")
	if contract == "" || method == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "contract and method query parameters are required"))
		return
	}

	gas, err := h.backend.EstimateGas(r.Context(), chain.Call{Contract: contract, Method: method})
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "gas estimation failed"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"contract": contract,
		"method":   method,
		"gas":      gas,
	})
}
