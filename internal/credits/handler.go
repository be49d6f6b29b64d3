package credits

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clarion-qa/clarion/internal/platform/httpx"
	"github.com/clarion-qa/clarion/internal/rbac"
	"github.com/clarion-qa/clarion/internal/shared"
	"github.com/clarion-qa/clarion/internal/tenant"
)

// Handler exposes credit balance endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     *shared.AuditLogger
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, audit *shared.AuditLogger, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, audit: audit, rbac: rbacMW, validator: validator.New()}
}

// MountRoutes registers credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance", h.ownBalance)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermViewReports))
		r.Get("/report", h.usageReport)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermManageCredits))
		r.Get("/{instanceID}", h.balance)
		r.Post("/{instanceID}/topup", h.topUp)
		r.Post("/{instanceID}/reset", h.resetUsage)
	})
}

type balanceResponse struct {
	InstanceID  string `json:"instance_id"`
	UsedAudits  int64  `json:"used_audits"`
	TotalAudits int64  `json:"total_audits"`
	UsedTokens  int64  `json:"used_tokens"`
	TotalTokens int64  `json:"total_tokens"`
	APICalls    int64  `json:"api_calls"`
	BillingType string `json:"billing_type"`
	LowBalance  bool   `json:"low_balance"`
}

func (h *Handler) toResponse(b *Balance) balanceResponse {
	return balanceResponse{
		InstanceID:  b.InstanceID,
		UsedAudits:  b.UsedAudits,
		TotalAudits: b.TotalAudits,
		UsedTokens:  b.UsedTokens,
		TotalTokens: b.TotalTokens,
		APICalls:    b.APICalls,
		BillingType: string(b.BillingType),
		LowBalance:  h.service.lowBalance(*b),
	}
}

// ownBalance reports the caller's instance balance.
func (h *Handler) ownBalance(w http.ResponseWriter, r *http.Request) {
	scope := tenant.ScopeFromContext(r.Context())
	if scope.InstanceID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "principal has no instance")
		return
	}
	balance, err := h.service.Balance(r.Context(), scope.InstanceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(balance))
}

type usageReportResponse struct {
	OrganizationID string            `json:"organization_id,omitempty"`
	Instances      []balanceResponse `json:"instances"`
}

// usageReport lists the balances across the caller's organization. Super
// admins carry no organization and may name one or omit it to see all.
func (h *Handler) usageReport(w http.ResponseWriter, r *http.Request) {
	scope := tenant.ScopeFromContext(r.Context())
	organizationID := scope.OrganizationID
	if p := shared.PrincipalFromContext(r.Context()); p != nil && p.Role == shared.RoleSuperAdmin {
		organizationID = r.URL.Query().Get("organization_id")
	} else if organizationID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "principal has no organization")
		return
	}
	balances, err := h.service.UsageReport(r.Context(), organizationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := usageReportResponse{OrganizationID: organizationID, Instances: make([]balanceResponse, 0, len(balances))}
	for i := range balances {
		resp.Instances = append(resp.Instances, h.toResponse(&balances[i]))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context(), chi.URLParam(r, "instanceID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(balance))
}

type topUpRequest struct {
	Audits int64 `json:"audits" validate:"gte=0"`
	Tokens int64 `json:"tokens" validate:"gte=0"`
}

func (h *Handler) topUp(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	var req topUpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.TopUp(r.Context(), instanceID, req.Audits, req.Tokens); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "credits.topup", instanceID, map[string]any{"audits": req.Audits, "tokens": req.Tokens})
	balance, err := h.service.Balance(r.Context(), instanceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(balance))
}

func (h *Handler) resetUsage(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if err := h.service.ResetUsage(r.Context(), instanceID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "credits.reset", instanceID, nil)
	balance, err := h.service.Balance(r.Context(), instanceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(balance))
}

func (h *Handler) recordAdminAction(r *http.Request, action, instanceID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	actorID := ""
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		actorID = p.UserID
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:    actorID,
		InstanceID: instanceID,
		Action:     action,
		Entity:     "credit_balance",
		EntityID:   instanceID,
		Meta:       meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
