package hrest

import (
	"context"
	"net/http"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/requestid"
	"github.com/lelandsequel/metalledger/internal/pkg/response"
	"github.com/lelandsequel/metalledger/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RoleHeader carries the caller's role token: HUMAN, agent or service:<role>.
const RoleHeader = "X-API-Role"

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type LedgerRestHandler struct {
	ledgerUC   *usecase.LedgerUsecase
	approvalUC *usecase.ApprovalUsecase
	sourceUC   *usecase.SourceConfigUsecase
	audit      *usecase.AuditTrail
	engine     usecase.ActionSubmitter
	store      Pinger
	logger     *zap.Logger
}

func NewLedgerRestHandler(
	ledgerUC *usecase.LedgerUsecase,
	approvalUC *usecase.ApprovalUsecase,
	sourceUC *usecase.SourceConfigUsecase,
	audit *usecase.AuditTrail,
	engine usecase.ActionSubmitter,
	store Pinger,
	logger *zap.Logger,
) *LedgerRestHandler {
	return &LedgerRestHandler{
		ledgerUC:   ledgerUC,
		approvalUC: approvalUC,
		sourceUC:   sourceUC,
		audit:      audit,
		engine:     engine,
		store:      store,
		logger:     logger,
	}
}

func (h *LedgerRestHandler) registerRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/journal_entries", func(r chi.Router) {
		r.With(h.requireHuman(domain.ActionCreateEntry)).Post("/", h.CreateEntry)
		r.Get("/{id}", h.GetEntry)
		r.With(h.requireHuman(domain.ActionVoidEntry)).Post("/{id}/void", h.VoidEntry)
	})
	r.Get("/accounts", h.ListAccounts)
	r.With(h.requireHuman(domain.ActionModifyAccount)).Post("/accounts/{code}/active", h.SetAccountActive)
	r.Get("/valuations", h.GetValuation)
	r.Get("/trial_balance", h.TrialBalance)

	r.Post("/actions", h.SubmitAction)

	r.Route("/approvals", func(r chi.Router) {
		r.Post("/", h.RecordApproval)
		r.Get("/", h.ListApprovals)
		r.Post("/{id}/revoke", h.RevokeApproval)
	})

	r.Get("/source_configs", h.ListSourceConfigs)
	r.Get("/source_configs/{key}", h.GetSourceConfig)
	r.Put("/source_configs/{key}", h.UpdateSourceConfig)

	r.Get("/audit", h.QueryAudit)
	r.Get("/audit/verify", h.VerifyAudit)
}

// Router builds the chi router with the standard middleware stack.
func (h *LedgerRestHandler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	h.registerRoutes(r)
	return r
}

func (h *LedgerRestHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		response.Error(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
