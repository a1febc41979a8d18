package modules

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
)

// Handler serves the module catalog.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry *Registry) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// MountRoutes registers module routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, ok := ParseActorType(r.URL.Query().Get("type"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "type must be one of ADMIN, EMPLOYEE, CLIENT, ALL")
		return
	}
	httpx.Data(w, http.StatusOK, h.registry.ListModules(r.Context(), filter))
}
