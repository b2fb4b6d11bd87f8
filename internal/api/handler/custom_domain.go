package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	mw "github.com/edvin/domains/internal/api/middleware"
	"github.com/edvin/domains/internal/api/request"
	"github.com/edvin/domains/internal/api/response"
	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/hostname"
)

// DomainService is the tenant-facing custom domain surface.
type DomainService interface {
	Add(ctx context.Context, tenantID, domain string) (*core.DomainView, error)
	List(ctx context.Context, tenantID string) ([]core.DomainView, error)
	Get(ctx context.Context, tenantID, id string) (*core.DomainView, error)
	Delete(ctx context.Context, tenantID, id string) error
	Verify(ctx context.Context, tenantID, id string) (*core.DomainView, error)
	Recheck(ctx context.Context, tenantID, id string) (*core.DomainView, error)
	Instructions(ctx context.Context, tenantID, id string) (hostname.DNSInstruction, error)
}

type CustomDomain struct {
	svc DomainService
}

func NewCustomDomain(svc DomainService) *CustomDomain {
	return &CustomDomain{svc: svc}
}

// List returns every custom domain of the calling tenant.
func (h *CustomDomain) List(w http.ResponseWriter, r *http.Request) {
	tenant := mw.GetTenant(r.Context())
	if tenant == nil {
		response.WriteError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	domains, err := h.svc.List(r.Context(), tenant.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteList(w, domains)
}

// Add registers a domain in pending state. Verification starts on the next
// sweep or the first verify call.
func (h *CustomDomain) Add(w http.ResponseWriter, r *http.Request) {
	tenant := mw.GetTenant(r.Context())
	if tenant == nil {
		response.WriteError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	var req request.AddCustomDomain
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.svc.Add(r.Context(), tenant.ID, req.Domain)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, view)
}

func (h *CustomDomain) Get(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(tenantID, id string) {
		view, err := h.svc.Get(r.Context(), tenantID, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, view)
	})
}

func (h *CustomDomain) Delete(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(tenantID, id string) {
		if err := h.svc.Delete(r.Context(), tenantID, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// Verify runs a verification attempt now and returns the resulting view.
// The dashboard polls this while the domain is pending or verifying. A
// failed domain is returned unchanged.
func (h *CustomDomain) Verify(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(tenantID, id string) {
		view, err := h.svc.Verify(r.Context(), tenantID, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, view)
	})
}

// Recheck re-triggers verification of a failed domain with a fresh window.
func (h *CustomDomain) Recheck(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(tenantID, id string) {
		view, err := h.svc.Recheck(r.Context(), tenantID, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, view)
	})
}

// DNS returns the record the tenant has to create at their DNS provider.
func (h *CustomDomain) DNS(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(tenantID, id string) {
		instr, err := h.svc.Instructions(r.Context(), tenantID, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, instr)
	})
}

func (h *CustomDomain) withID(w http.ResponseWriter, r *http.Request, fn func(tenantID, id string)) {
	tenant := mw.GetTenant(r.Context())
	if tenant == nil {
		response.WriteError(w, http.StatusUnauthorized, "missing API key")
		return
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	fn(tenant.ID, id)
}

// writeServiceError maps core errors to status codes. Internal failures are
// logged and never echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, "custom domain not found")
	case errors.Is(err, core.ErrDomainTaken):
		response.WriteError(w, http.StatusConflict, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("custom domain request failed")
		response.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
