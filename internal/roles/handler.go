package roles

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/modules"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/rbac"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// PermissionStore reads and writes a role's permission matrix.
type PermissionStore interface {
	GetPermissions(ctx context.Context, tenantID, roleID int64) ([]rbac.Permission, error)
	SetPermissions(ctx context.Context, actor shared.Actor, roleID int64, perms []rbac.Permission) ([]rbac.Permission, error)
}

// Handler manages role management endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	permissions PermissionStore
	guard       *rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, permissions PermissionStore, guard *rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, permissions: permissions, guard: guard}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(modules.KeyRoles, rbac.CapView))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
		r.Get("/{id}/permissions", h.getPermissions)
		r.Get("/{id}/users", h.listUsers)
	})
	r.With(h.guard.Require(modules.KeyRoles, rbac.CapAdd)).Post("/", h.createRole)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(modules.KeyRoles, rbac.CapEdit))
		r.Put("/{id}", h.updateRole)
		r.Put("/{id}/permissions", h.setPermissions)
		r.Post("/{id}/assign", h.assign)
		r.Delete("/{id}/assign/{userID}", h.unassign)
	})
	r.With(h.guard.Require(modules.KeyRoles, rbac.CapDelete)).Delete("/{id}", h.deleteRole)
}

type permissionsPayload struct {
	Permissions []rbac.Permission `json:"permissions" validate:"required,min=1,dive"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), actor.TenantID)
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.Data(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	role, err := h.service.GetRole(r.Context(), actor.TenantID, id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.Data(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	role, err := h.service.CreateRole(r.Context(), actor, req.Name, req.Description, false)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.Data(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	role, err := h.service.RenameRole(r.Context(), actor, id, req.Name, req.Description)
	if err != nil {
		h.fail(w, "rename role", err)
		return
	}
	httpx.Data(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteRole(r.Context(), actor, id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	perms, err := h.permissions.GetPermissions(r.Context(), actor.TenantID, id)
	if err != nil {
		h.fail(w, "get permissions", err)
		return
	}
	httpx.Data(w, http.StatusOK, perms)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req permissionsPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	perms, err := h.permissions.SetPermissions(r.Context(), actor, id, req.Permissions)
	if err != nil {
		h.fail(w, "set permissions", err)
		return
	}
	httpx.Data(w, http.StatusOK, perms)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	users, err := h.service.ListUsersForRole(r.Context(), actor.TenantID, id)
	if err != nil {
		h.fail(w, "list role users", err)
		return
	}
	httpx.Data(w, http.StatusOK, users)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.AssignRole(r.Context(), actor, id, req.UserID); err != nil {
		h.fail(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.UnassignRole(r.Context(), actor, id, userID); err != nil {
		h.fail(w, "unassign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", key+" must be a positive integer")
		return 0, false
	}
	return id, true
}
