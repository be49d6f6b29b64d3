package users

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

// Handler exposes user management endpoints. All of them require
// manage_users; role assignment additionally requires manage_roles.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequirePermissions(shared.PermManageUsers))
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Post("/{id}/reactivate", h.reactivate)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermManageRoles))
		r.Put("/{id}/role", h.assignRole)
	})
}

type userResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	OrganizationID string    `json:"organization_id"`
	InstanceID     string    `json:"instance_id"`
	ProjectID      string    `json:"project_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func toResponse(u *User) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           string(u.Role),
		OrganizationID: u.OrganizationID,
		InstanceID:     u.InstanceID,
		ProjectID:      u.ProjectID,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
	}
}

// instanceFor resolves the instance the request operates in. Super admins
// may target any instance through a query parameter; everyone else is
// pinned to their own scope.
func instanceFor(r *http.Request) string {
	if p := shared.PrincipalFromContext(r.Context()); p != nil && p.Role == shared.RoleSuperAdmin {
		if explicit := r.URL.Query().Get("instance_id"); explicit != "" {
			return explicit
		}
	}
	return tenant.ScopeFromContext(r.Context()).InstanceID
}

type createUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required"`
	Password   string `json:"password" validate:"required,min=8"`
	Role       string `json:"role" validate:"required"`
	InstanceID string `json:"instance_id"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	scope := tenant.ScopeFromContext(r.Context())
	principal := shared.PrincipalFromContext(r.Context())
	instanceID := scope.InstanceID
	if principal != nil && principal.Role == shared.RoleSuperAdmin && req.InstanceID != "" {
		instanceID = req.InstanceID
	}
	if instanceID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "no target instance")
		return
	}

	user, err := h.service.Create(r.Context(), CreateRequest{
		Email:          req.Email,
		Name:           req.Name,
		Password:       req.Password,
		Role:           shared.Role(req.Role),
		OrganizationID: scope.OrganizationID,
		InstanceID:     instanceID,
		ProjectID:      scope.ProjectID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "users.create", user, map[string]any{"role": req.Role})
	httpx.JSON(w, http.StatusCreated, toResponse(user))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	instanceID := instanceFor(r)
	if instanceID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "no target instance")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	list, err := h.service.List(r.Context(), instanceID, shared.NewPagination(page, perPage, 0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), instanceFor(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	user, err := h.service.AssignRole(r.Context(), principal, chi.URLParam(r, "id"), instanceFor(r), shared.Role(req.Role))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "users.assign_role", user, map[string]any{"role": req.Role})
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id"), instanceFor(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "users.deactivate", user, nil)
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Reactivate(r.Context(), chi.URLParam(r, "id"), instanceFor(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAdminAction(r, "users.reactivate", user, nil)
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) recordAdminAction(r *http.Request, action string, user *User, meta map[string]any) {
	if h.audit == nil {
		return
	}
	actorID := ""
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		actorID = p.UserID
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:    actorID,
		InstanceID: user.InstanceID,
		Action:     action,
		Entity:     "user",
		EntityID:   user.ID,
		Meta:       meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
