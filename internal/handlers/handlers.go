package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/carelane/visitor-queue/internal/domain"
	"github.com/carelane/visitor-queue/internal/repository"
	"github.com/carelane/visitor-queue/internal/service"
	"github.com/carelane/visitor-queue/pkg/auth"
	"github.com/carelane/visitor-queue/pkg/logger"
)

// Error codes returned in the JSON error envelope.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidService    = "INVALID_SERVICE"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeSequenceExhausted = "SEQUENCE_EXHAUSTED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternalError     = "INTERNAL_ERROR"
)

type Handlers struct {
	tokenService     service.TokenService
	queueService     service.QueueQueryService
	providerRepo     repository.ProviderRepository
	serviceRepo      repository.ServiceRepository
	notificationRepo repository.NotificationRepository
	auditRepo        repository.AuditRepository
	jwtSecret        string
}

func New(
	tokenService service.TokenService,
	queueService service.QueueQueryService,
	providerRepo repository.ProviderRepository,
	serviceRepo repository.ServiceRepository,
	notificationRepo repository.NotificationRepository,
	auditRepo repository.AuditRepository,
	jwtSecret string,
) *Handlers {
	return &Handlers{
		tokenService:     tokenService,
		queueService:     queueService,
		providerRepo:     providerRepo,
		serviceRepo:      serviceRepo,
		notificationRepo: notificationRepo,
		auditRepo:        auditRepo,
		jwtSecret:        jwtSecret,
	}
}

type ctxKey string

const ctxClaims ctxKey = "claims"

// RequireJWT gates staff endpoints. Authorization policy lives upstream;
// here the claims only identify the actor for audit entries.
func (h *Handlers) RequireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := h.parseBearer(r)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Missing or invalid authorization token")
			return
		}
		ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
		ctx = context.WithValue(ctx, ctxClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalJWT attaches claims when a bearer token is present but lets
// anonymous walk-ins through.
func (h *Handlers) OptionalJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := h.parseBearer(r); claims != nil {
			ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
			ctx = context.WithValue(ctx, ctxClaims, claims)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) parseBearer(r *http.Request) *auth.Claims {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return nil
	}
	claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), h.jwtSecret)
	if err != nil {
		return nil
	}
	return claims
}

func getClaims(r *http.Request) *auth.Claims {
	v := r.Context().Value(ctxClaims)
	if v == nil {
		return nil
	}
	return v.(*auth.Claims)
}

func actorID(r *http.Request) *int64 {
	if claims := getClaims(r); claims != nil {
		id := claims.Sub
		return &id
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeDomainError maps the core error taxonomy onto HTTP. Transition
// validation failures go back verbatim so the caller sees exactly which
// states were involved.
func writeDomainError(w http.ResponseWriter, err error) {
	var illegal *domain.IllegalTransitionError
	switch {
	case errors.Is(err, domain.ErrInvalidService):
		writeError(w, http.StatusBadRequest, CodeInvalidService, "Unknown or inactive service")
	case errors.As(err, &illegal):
		writeError(w, http.StatusBadRequest, CodeIllegalTransition, illegal.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found")
	case errors.Is(err, domain.ErrSequenceExhausted):
		writeError(w, http.StatusInternalServerError, CodeSequenceExhausted, "Token sequence exhausted for this service today")
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "Storage temporarily unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal error")
	}
}
