package rbac

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/modules"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Handler exposes effective permission lookups.
type Handler struct {
	resolver Resolver
	guard    *Middleware
}

// NewHandler builds the permissions handler.
func NewHandler(resolver Resolver, guard *Middleware) *Handler {
	return &Handler{resolver: resolver, guard: guard}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.me)
	r.With(h.guard.Require(modules.KeyRoles, CapView)).Get("/users/{userID}/permissions", h.forUser)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || !actor.HasUser() {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	perms, err := h.resolver.ResolveEffectivePermissions(r.Context(), actor.TenantID, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, perms)
}

func (h *Handler) forUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid user id", "")
		return
	}
	perms, err := h.resolver.ResolveEffectivePermissions(r.Context(), actor.TenantID, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, perms)
}
