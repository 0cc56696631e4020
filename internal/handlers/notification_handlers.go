package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carelane/visitor-queue/internal/domain"
)

// ListNotifications returns the caller's stored notifications, newest
// first.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	limit, offset := parsePagination(r)
	notifications, err := h.notificationRepo.ListByUser(r.Context(), claims.Sub, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve notifications")
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}

	writeJSON(w, http.StatusOK, notifications)
}

func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid notification ID")
		return
	}

	ok, err := h.notificationRepo.MarkRead(r.Context(), id, claims.Sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to update notification")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "Notification not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit, offset = 20, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			offset = n
		}
	}
	return limit, offset
}
