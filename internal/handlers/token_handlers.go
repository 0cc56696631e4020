package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carelane/visitor-queue/internal/domain"
)

// CreateToken issues the next token for a service. Walk-ins pass a
// visitor_name; authenticated visitors are attached via their bearer token.
func (h *Handlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req domain.TokenCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid JSON format")
		return
	}
	if req.ServiceID <= 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "service_id is required")
		return
	}

	// Authenticated visitors fall back to the email on their claims so
	// notifications still reach them without re-entering it.
	if claims := getClaims(r); claims != nil && req.VisitorEmail == "" {
		req.VisitorEmail = claims.Email
	}

	token, err := h.tokenService.IssueToken(r.Context(), &req, actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

// UpdateTokenStatus moves a token through its lifecycle. Staff only.
func (h *Handlers) UpdateTokenStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid token ID")
		return
	}

	var req domain.TokenStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid JSON format")
		return
	}

	status, ok := domain.ParseTokenStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Unknown status "+strconv.Quote(req.Status))
		return
	}

	token, err := h.tokenService.Transition(r.Context(), id, status, actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// TokensByService lists today's tokens for a service, ascending by number.
func (h *Handlers) TokensByService(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("service")
	if raw == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Missing 'service' query parameter")
		return
	}
	serviceID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid 'service' query parameter")
		return
	}

	tokens, err := h.queueService.ListToday(r.Context(), serviceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}

	writeJSON(w, http.StatusOK, tokens)
}

// CancelAllTokens cancels every waiting or calling token a service holds
// today. Safe to rerun; the second run cancels nothing further.
func (h *Handlers) CancelAllTokens(w http.ResponseWriter, r *http.Request) {
	serviceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid service ID")
		return
	}

	cancelled, err := h.tokenService.CancelAll(r.Context(), serviceID, actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"cancelled": cancelled})
}

// ListAuditLogs exposes the most recent audit entries to staff.
func (h *Handlers) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	logs, err := h.auditRepo.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve audit logs")
		return
	}

	writeJSON(w, http.StatusOK, logs)
}
