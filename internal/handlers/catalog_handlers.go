package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/carelane/visitor-queue/internal/domain"
)

// Provider and service records are plain bookkeeping around the token
// core; the only field the core reads back is the service's active flag.

func (h *Handlers) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var req domain.ProviderCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid JSON format")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "name is required")
		return
	}

	provider, err := h.providerRepo.Create(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to create provider")
		return
	}

	writeJSON(w, http.StatusCreated, provider)
}

func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providerRepo.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve providers")
		return
	}
	if providers == nil {
		providers = []domain.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *Handlers) GetProvider(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid provider ID")
		return
	}

	provider, err := h.providerRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve provider")
		return
	}
	if provider == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Provider not found")
		return
	}

	writeJSON(w, http.StatusOK, provider)
}

func (h *Handlers) CreateService(w http.ResponseWriter, r *http.Request) {
	var req domain.ServiceCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid JSON format")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "name is required")
		return
	}

	svc, err := h.serviceRepo.Create(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to create service")
		return
	}

	writeJSON(w, http.StatusCreated, svc)
}

func (h *Handlers) ListServices(w http.ResponseWriter, r *http.Request) {
	var providerID *int64
	if raw := r.URL.Query().Get("provider"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid 'provider' query parameter")
			return
		}
		providerID = &id
	}

	services, err := h.serviceRepo.List(r.Context(), providerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve services")
		return
	}
	if services == nil {
		services = []domain.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handlers) GetService(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid service ID")
		return
	}

	svc, err := h.serviceRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve service")
		return
	}
	if svc == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Service not found")
		return
	}

	writeJSON(w, http.StatusOK, svc)
}

// SetServiceActive flips the flag that gates token issuance.
func (h *Handlers) SetServiceActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid service ID")
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "active is required")
		return
	}

	svc, err := h.serviceRepo.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to update service")
		return
	}
	if svc == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Service not found")
		return
	}

	writeJSON(w, http.StatusOK, svc)
}
