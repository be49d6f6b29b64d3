package instances

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/clarion-qa/clarion/internal/credits"
	"github.com/clarion-qa/clarion/internal/platform/httpx"
	"github.com/clarion-qa/clarion/internal/rbac"
	"github.com/clarion-qa/clarion/internal/shared"
	"github.com/clarion-qa/clarion/internal/tenant"
)

// BalanceReader reports the credit balance for an instance. Satisfied by
// credits.Service.
type BalanceReader interface {
	Balance(ctx context.Context, instanceID string) (*credits.Balance, error)
}

// Handler exposes instance lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	balances  BalanceReader
	audit     *shared.AuditLogger
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, balances BalanceReader, audit *shared.AuditLogger, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, balances: balances, audit: audit, rbac: rbacMW, validator: validator.New()}
}

// MountRoutes registers instance routes. Everything here is an
// administrative surface.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequirePermissions(shared.PermManageInstances))
	r.Get("/", h.list)
	r.Post("/", h.provision)
	r.Get("/{id}", h.show)
	r.Patch("/{id}", h.rename)
	r.Post("/{id}/suspend", h.suspend)
	r.Post("/{id}/resume", h.resume)
}

type instanceResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ProjectID      string    `json:"project_id,omitempty"`
	Name           string    `json:"name"`
	Region         string    `json:"region,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toResponse(inst *Instance) instanceResponse {
	return instanceResponse{
		ID:             inst.ID,
		OrganizationID: inst.OrganizationID,
		ProjectID:      inst.ProjectID,
		Name:           inst.Name,
		Region:         inst.Region,
		Status:         string(inst.Status),
		CreatedAt:      inst.CreatedAt,
		UpdatedAt:      inst.UpdatedAt,
	}
}

type provisionRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	ProjectID      string `json:"project_id"`
	Name           string `json:"name" validate:"required,min=3"`
	Region         string `json:"region"`
	TotalAudits    int64  `json:"total_audits" validate:"gte=-1"`
	TotalTokens    int64  `json:"total_tokens" validate:"gte=-1"`
	BillingType    string `json:"billing_type" validate:"omitempty,oneof=prepaid subscription trial"`
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inst, err := h.service.Provision(r.Context(), ProvisionRequest{
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		Name:           req.Name,
		Region:         req.Region,
		TotalAudits:    req.TotalAudits,
		TotalTokens:    req.TotalTokens,
		BillingType:    credits.BillingType(req.BillingType),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "instances.provision", inst.ID, map[string]any{
		"organization_id": inst.OrganizationID,
		"total_audits":    req.TotalAudits,
	})
	httpx.JSON(w, http.StatusCreated, toResponse(inst))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope := tenant.ScopeFromContext(r.Context())
	organizationID := scope.OrganizationID
	// Super admins carry no organization and see everything.
	if p := shared.PrincipalFromContext(r.Context()); p != nil && p.Role == shared.RoleSuperAdmin {
		organizationID = r.URL.Query().Get("organization_id")
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	list, err := h.service.List(r.Context(), organizationID, shared.NewPagination(page, perPage, 0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]instanceResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"instances": out})
}

// show returns the instance together with its credit balance. The two
// reads are independent and fetched in parallel.
func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		inst    *Instance
		balance *credits.Balance
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		inst, err = h.service.Get(ctx, id)
		return err
	})
	if h.balances != nil {
		g.Go(func() error {
			b, err := h.balances.Balance(ctx, id)
			if err != nil {
				// An instance without a balance row is still presentable.
				if errors.Is(err, shared.ErrNotFound) {
					return nil
				}
				return err
			}
			balance = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := map[string]any{"instance": toResponse(inst)}
	if balance != nil {
		resp["balance"] = map[string]any{
			"used_audits":  balance.UsedAudits,
			"total_audits": balance.TotalAudits,
			"used_tokens":  balance.UsedTokens,
			"total_tokens": balance.TotalTokens,
			"api_calls":    balance.APICalls,
			"billing_type": string(balance.BillingType),
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type renameRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inst, err := h.service.Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "instances.rename", inst.ID, map[string]any{"name": req.Name})
	httpx.JSON(w, http.StatusOK, toResponse(inst))
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	inst, err := h.service.Suspend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "instances.suspend", inst.ID, nil)
	httpx.JSON(w, http.StatusOK, toResponse(inst))
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	inst, err := h.service.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "instances.resume", inst.ID, nil)
	httpx.JSON(w, http.StatusOK, toResponse(inst))
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
		Entity:     "instance",
		EntityID:   instanceID,
		Meta:       meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
