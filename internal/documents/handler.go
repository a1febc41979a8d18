package documents

import (
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

const idempotencyHeader = "Idempotency-Key"

// Handler exposes contract, invoice and estimate endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   *rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers /contracts, /invoices and /estimates.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/contracts", func(r chi.Router) {
		h.crud(r, modules.KeyContracts, h.listContracts, h.getContract, h.createContract, h.updateContract, h.deleteContract)
		r.Group(func(r chi.Router) {
			r.Use(h.guard.Require(modules.KeyContracts, rbac.CapEdit))
			r.Put("/{id}/status", h.contractStatus)
			r.Post("/{id}/send", h.sendContract)
		})
	})
	r.Route("/invoices", func(r chi.Router) {
		h.crud(r, modules.KeyInvoices, h.listInvoices, h.getInvoice, h.createInvoice, h.updateInvoice, h.deleteInvoice)
		r.With(h.guard.Require(modules.KeyInvoices, rbac.CapAdd)).Post("/recurring", h.createRecurring)
		r.With(h.guard.Require(modules.KeyInvoices, rbac.CapEdit)).Post("/{id}/send", h.sendInvoice)
	})
	r.Route("/estimates", func(r chi.Router) {
		h.crud(r, modules.KeyEstimates, h.listEstimates, h.getEstimate, h.createEstimate, h.updateEstimate, h.deleteEstimate)
		r.Group(func(r chi.Router) {
			r.Use(h.guard.Require(modules.KeyEstimates, rbac.CapEdit))
			r.Put("/{id}/status", h.estimateStatus)
			r.Post("/{id}/send", h.sendEstimate)
		})
		r.With(
			h.guard.Require(modules.KeyEstimates, rbac.CapEdit),
			h.guard.Require(modules.KeyInvoices, rbac.CapAdd),
		).Post("/{id}/convert-to-invoice", h.convertEstimate)
	})
}

func (h *Handler) crud(r chi.Router, module string, list, get, create, update, del http.HandlerFunc) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(module, rbac.CapView))
		r.Get("/", list)
		r.Get("/{id}", get)
	})
	r.With(h.guard.Require(module, rbac.CapAdd)).Post("/", create)
	r.With(h.guard.Require(module, rbac.CapEdit)).Put("/{id}", update)
	r.With(h.guard.Require(module, rbac.CapDelete)).Delete("/{id}", del)
}

// ---------------------------------------------------------------------------
// contracts
// ---------------------------------------------------------------------------

func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	filter, ok := listFilter(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	items, pg, err := h.service.ListContracts(r.Context(), actor.TenantID, filter)
	if err != nil {
		h.fail(w, "list contracts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: items, Pagination: &pg})
}

func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	c, err := h.service.GetContract(r.Context(), actor.TenantID, id)
	if err != nil {
		h.fail(w, "get contract", err)
		return
	}
	httpx.Data(w, http.StatusOK, c)
}

func (h *Handler) createContract(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	c, err := h.service.CreateContract(r.Context(), actor, req, idempotencyKey(r))
	if err != nil {
		h.fail(w, "create contract", err)
		return
	}
	httpx.Data(w, http.StatusCreated, c)
}

func (h *Handler) updateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ContractPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	c, err := h.service.UpdateContract(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, "update contract", err)
		return
	}
	httpx.Data(w, http.StatusOK, c)
}

func (h *Handler) deleteContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteContract(r.Context(), actor, id); err != nil {
		h.fail(w, "delete contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) contractStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	c, warnings, err := h.service.UpdateContractStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		h.fail(w, "update contract status", err)
		return
	}
	httpx.Data(w, http.StatusOK, c, warnings...)
}

func (h *Handler) sendContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := sendRequest(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	c, warnings, err := h.service.SendContract(r.Context(), actor, id, req.To)
	if err != nil {
		h.fail(w, "send contract", err)
		return
	}
	httpx.Data(w, http.StatusOK, c, warnings...)
}

// ---------------------------------------------------------------------------
// invoices
// ---------------------------------------------------------------------------

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter, ok := listFilter(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	items, pg, err := h.service.ListInvoices(r.Context(), actor.TenantID, filter)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: items, Pagination: &pg})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.GetInvoice(r.Context(), actor.TenantID, id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.Data(w, http.StatusOK, inv)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.CreateInvoice(r.Context(), actor, req, idempotencyKey(r))
	if err != nil {
		h.fail(w, "create invoice", err)
		return
	}
	httpx.Data(w, http.StatusCreated, inv)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req InvoicePatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.UpdateInvoice(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, "update invoice", err)
		return
	}
	httpx.Data(w, http.StatusOK, inv)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteInvoice(r.Context(), actor, id); err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := sendRequest(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inv, warnings, err := h.service.SendInvoice(r.Context(), actor, id, req.To)
	if err != nil {
		h.fail(w, "send invoice", err)
		return
	}
	httpx.Data(w, http.StatusOK, inv, warnings...)
}

func (h *Handler) createRecurring(w http.ResponseWriter, r *http.Request) {
	var req RecurringRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	invoices, err := h.service.CreateRecurringInvoices(r.Context(), actor, req)
	if err != nil {
		h.fail(w, "create recurring invoices", err)
		return
	}
	httpx.Data(w, http.StatusCreated, invoices)
}

// ---------------------------------------------------------------------------
// estimates
// ---------------------------------------------------------------------------

func (h *Handler) listEstimates(w http.ResponseWriter, r *http.Request) {
	filter, ok := listFilter(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	items, pg, err := h.service.ListEstimates(r.Context(), actor.TenantID, filter)
	if err != nil {
		h.fail(w, "list estimates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: items, Pagination: &pg})
}

func (h *Handler) getEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	e, err := h.service.GetEstimate(r.Context(), actor.TenantID, id)
	if err != nil {
		h.fail(w, "get estimate", err)
		return
	}
	httpx.Data(w, http.StatusOK, e)
}

func (h *Handler) createEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	e, err := h.service.CreateEstimate(r.Context(), actor, req, idempotencyKey(r))
	if err != nil {
		h.fail(w, "create estimate", err)
		return
	}
	httpx.Data(w, http.StatusCreated, e)
}

func (h *Handler) updateEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req EstimatePatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	e, err := h.service.UpdateEstimate(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, "update estimate", err)
		return
	}
	httpx.Data(w, http.StatusOK, e)
}

func (h *Handler) deleteEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteEstimate(r.Context(), actor, id); err != nil {
		h.fail(w, "delete estimate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) estimateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	e, err := h.service.UpdateEstimateStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		h.fail(w, "update estimate status", err)
		return
	}
	httpx.Data(w, http.StatusOK, e)
}

func (h *Handler) sendEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := sendRequest(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	e, warnings, err := h.service.SendEstimate(r.Context(), actor, id, req.To)
	if err != nil {
		h.fail(w, "send estimate", err)
		return
	}
	httpx.Data(w, http.StatusOK, e, warnings...)
}

func (h *Handler) convertEstimate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ConvertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.ConvertToInvoice(r.Context(), actor, id, req, idempotencyKey(r))
	if err != nil {
		h.fail(w, "convert estimate", err)
		return
	}
	httpx.Data(w, http.StatusCreated, inv)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(idempotencyHeader))
}

// sendRequest decodes an optional body; an empty body means the client's address.
func sendRequest(w http.ResponseWriter, r *http.Request) (SendRequest, bool) {
	var req SendRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	return req, true
}

func listFilter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: strings.TrimSpace(q.Get("status")),
		Search: strings.TrimSpace(q.Get("search")),
	}
	filter.Page, filter.PerPage = shared.PageFromQuery(q)
	for key, dst := range map[string]**int64{"client_id": &filter.ClientID, "project_id": &filter.ProjectID} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid filter", key+" must be a positive integer")
			return ListFilter{}, false
		}
		*dst = &v
	}
	return filter, true
}
