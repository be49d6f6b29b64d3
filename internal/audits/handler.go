package audits

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clarion-qa/clarion/internal/platform/httpx"
	"github.com/clarion-qa/clarion/internal/rbac"
	"github.com/clarion-qa/clarion/internal/shared"
	"github.com/clarion-qa/clarion/internal/tenant"
)

// Handler exposes audit endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	resolver  *rbac.Resolver
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *rbac.Resolver, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, resolver: resolver, rbac: rbacMW, validator: validator.New()}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermPerformAudit))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermViewOwnAudits))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
}

type createRequest struct {
	CallID     string  `json:"call_id" validate:"required"`
	AgentID    string  `json:"agent_id" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0,lte=100"`
	TokensUsed int64   `json:"tokens_used" validate:"gte=0"`
	Notes      string  `json:"notes"`
}

type auditResponse struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	CallID     string    `json:"call_id"`
	AgentID    string    `json:"agent_id"`
	AuditorID  string    `json:"auditor_id"`
	Score      float64   `json:"score"`
	TokensUsed int64     `json:"tokens_used"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toResponse(a *Audit) auditResponse {
	return auditResponse{
		ID:         a.ID,
		InstanceID: a.InstanceID,
		CallID:     a.CallID,
		AgentID:    a.AgentID,
		AuditorID:  a.AuditorID,
		Score:      a.Score,
		TokensUsed: a.TokensUsed,
		Notes:      a.Notes,
		CreatedAt:  a.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope := tenant.ScopeFromContext(r.Context())
	principal := shared.PrincipalFromContext(r.Context())
	if scope.InstanceID == "" || principal == nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "principal has no instance")
		return
	}

	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	audit, err := h.service.Create(r.Context(), CreateRequest{
		InstanceID:     scope.InstanceID,
		CallID:         req.CallID,
		AgentID:        req.AgentID,
		AuditorID:      principal.UserID,
		Score:          req.Score,
		TokensUsed:     req.TokensUsed,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(audit))
}

// list returns audits inside the caller's instance. Principals without
// view_all_audits only ever see audits of their own calls.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope := tenant.ScopeFromContext(r.Context())
	principal := shared.PrincipalFromContext(r.Context())
	if scope.InstanceID == "" || principal == nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "principal has no instance")
		return
	}

	filter := Filter{InstanceID: scope.InstanceID}
	if h.resolver.HasPermission(principal.Role, shared.PermViewAllAudits) {
		filter.AgentID = r.URL.Query().Get("agent_id")
		filter.AuditorID = r.URL.Query().Get("auditor_id")
	} else {
		filter.AgentID = principal.UserID
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if parsed, err := time.Parse("2006-01-02", from); err == nil {
			filter.From = parsed
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if parsed, err := time.Parse("2006-01-02", to); err == nil {
			filter.To = parsed
		}
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	list, err := h.service.List(r.Context(), filter, shared.NewPagination(page, perPage, 0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]auditResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"audits": out})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	scope := tenant.ScopeFromContext(r.Context())
	principal := shared.PrincipalFromContext(r.Context())
	if scope.InstanceID == "" || principal == nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "principal has no instance")
		return
	}
	audit, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), scope.InstanceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.resolver.HasPermission(principal.Role, shared.PermViewAllAudits) && audit.AgentID != principal.UserID {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(audit))
}
