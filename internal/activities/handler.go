// Package activities exposes the tenant's audit trail over HTTP.
package activities

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/modules"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/rbac"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

const maxModuleLen = 64

// Lister reads recorded activities; *shared.ActivityLogger implements it.
type Lister interface {
	List(ctx context.Context, tenantID int64, filter shared.ActivityFilter) ([]shared.Activity, int, error)
}

// Handler serves the activity listing.
type Handler struct {
	logger *slog.Logger
	lister Lister
	guard  *rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, lister Lister, guard *rbac.Middleware) *Handler {
	return &Handler{logger: logger, lister: lister, guard: guard}
}

// MountRoutes registers activity routes. Reading the trail is a reporting
// capability.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(modules.KeyReports, rbac.CapView)).Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := shared.ActivityFilter{Module: strings.TrimSpace(q.Get("module"))}
	if len(filter.Module) > maxModuleLen {
		httpx.Problem(w, http.StatusBadRequest, "Invalid filter", "module is too long")
		return
	}
	if raw := q.Get("module_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid filter", "module_id must be a positive integer")
			return
		}
		filter.ModuleID = id
	}
	filter.Page, filter.PerPage = shared.PageFromQuery(q)

	actor, _ := shared.ActorFromContext(r.Context())
	items, total, err := h.lister.List(r.Context(), actor.TenantID, filter)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("list activities", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	pg := shared.NewPagination(filter.Page, filter.PerPage, total)
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: items, Pagination: &pg})
}
