package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/carelane/visitor-queue/internal/domain"
	"github.com/carelane/visitor-queue/internal/service"
	"github.com/carelane/visitor-queue/pkg/auth"
	"github.com/carelane/visitor-queue/pkg/config"
)

const testSecret = "test-secret"

type stubTokenRepo struct {
	mu     sync.Mutex
	nextID int64
	tokens map[int64]*domain.Token
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{tokens: make(map[int64]*domain.Token)}
}

func (m *stubTokenRepo) CreateNext(_ context.Context, draft *domain.TokenDraft) (*domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 1
	for _, t := range m.tokens {
		if t.ServiceID == draft.ServiceID && t.IssueDate.Equal(draft.IssueDate) && t.TokenNumber >= next {
			next = t.TokenNumber + 1
		}
	}
	m.nextID++
	now := time.Now()
	t := &domain.Token{
		ID:           m.nextID,
		ServiceID:    draft.ServiceID,
		TokenNumber:  next,
		IssueDate:    draft.IssueDate,
		Status:       domain.TokenWaiting,
		VisitorName:  draft.VisitorName,
		VisitorEmail: draft.VisitorEmail,
		UserID:       draft.UserID,
		IssuedAt:     now,
		UpdatedAt:    now,
	}
	m.tokens[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *stubTokenRepo) GetByID(_ context.Context, id int64) (*domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *stubTokenRepo) Transition(_ context.Context, id int64, to domain.TokenStatus, _ *int64) (*domain.Token, domain.TokenStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	from := t.Status
	if !from.CanTransition(to) {
		return nil, from, &domain.IllegalTransitionError{From: from, To: to}
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, from, nil
}

func (m *stubTokenRepo) CancelChunk(_ context.Context, serviceID int64, day time.Time, limit int, _ *int64) ([]domain.CancelledToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var picked []domain.CancelledToken
	for _, t := range m.tokens {
		if len(picked) >= limit {
			break
		}
		if t.ServiceID == serviceID && t.IssueDate.Equal(day) && !t.Status.IsTerminal() {
			from := t.Status
			t.Status = domain.TokenCancelled
			picked = append(picked, domain.CancelledToken{Token: *t, From: from})
		}
	}
	return picked, nil
}

func (m *stubTokenRepo) CancelStaleBefore(_ context.Context, day time.Time, limit int) ([]domain.CancelledToken, error) {
	return nil, nil
}

func (m *stubTokenRepo) ListByServiceAndDate(_ context.Context, serviceID int64, day time.Time) ([]domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Token
	for _, t := range m.tokens {
		if t.ServiceID == serviceID && t.IssueDate.Equal(day) {
			out = append(out, *t)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].TokenNumber < out[i].TokenNumber {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

type stubServiceRepo struct {
	services map[int64]*domain.Service
}

func (m *stubServiceRepo) Create(_ context.Context, in *domain.ServiceCreateReq) (*domain.Service, error) {
	svc := &domain.Service{ID: int64(len(m.services) + 1), Name: in.Name, Active: true, CreatedAt: time.Now()}
	m.services[svc.ID] = svc
	return svc, nil
}

func (m *stubServiceRepo) GetByID(_ context.Context, id int64) (*domain.Service, error) {
	return m.services[id], nil
}

func (m *stubServiceRepo) List(_ context.Context, _ *int64) ([]domain.Service, error) {
	var out []domain.Service
	for _, svc := range m.services {
		out = append(out, *svc)
	}
	return out, nil
}

func (m *stubServiceRepo) SetActive(_ context.Context, id int64, active bool) (*domain.Service, error) {
	svc := m.services[id]
	if svc != nil {
		svc.Active = active
	}
	return svc, nil
}

type stubAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (m *stubAuditRepo) InsertTx(_ context.Context, _ pgx.Tx, action string, userID *int64, details string) error {
	return m.Insert(context.Background(), action, userID, details)
}

func (m *stubAuditRepo) Insert(_ context.Context, action string, userID *int64, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditLog{
		ID:        int64(len(m.entries) + 1),
		Action:    action,
		Timestamp: time.Now(),
		UserID:    userID,
		Details:   details,
	})
	return nil
}

func (m *stubAuditRepo) ListRecent(_ context.Context, limit int) ([]domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditLog, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

type stubEventBus struct{}

func (stubEventBus) Publish(_ context.Context, _ string, _ interface{}) error { return nil }
func (stubEventBus) Close() error                                            { return nil }

func setupTestServer(t *testing.T) (*httptest.Server, *stubTokenRepo) {
	t.Helper()

	tokenRepo := newStubTokenRepo()
	serviceRepo := &stubServiceRepo{services: map[int64]*domain.Service{
		1: {ID: 1, Name: "Cardiology OPD", Active: true},
		2: {ID: 2, Name: "Radiology", Active: false},
	}}
	auditRepo := &stubAuditRepo{}

	cfg := config.QueueConfig{Timezone: "UTC", MaxTokensPerDay: 9999, CancelChunkSize: 10, AllocateRetries: 3}
	clock := domain.SystemClock()
	tokenService := service.NewTokenService(tokenRepo, serviceRepo, stubEventBus{}, clock, cfg)
	queueService := service.NewQueueQueryService(tokenRepo, serviceRepo, clock, cfg)

	h := New(tokenService, queueService, nil, serviceRepo, nil, auditRepo, testSecret)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Route("/tokens", func(r chi.Router) {
			r.With(h.OptionalJWT).Post("/", h.CreateToken)
			r.With(h.RequireJWT).Patch("/{id}/status", h.UpdateTokenStatus)
		})
		r.Get("/tokens-by-service", h.TokensByService)
		r.With(h.RequireJWT).Post("/services/{id}/cancel-all", h.CancelAllTokens)
		r.With(h.RequireJWT).Get("/audit-logs", h.ListAuditLogs)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, tokenRepo
}

func staffToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewAccessToken(7, "staff@clinic.test", "staff", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func doJSON(t *testing.T, method, url, bearer string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	defer resp.Body.Close()
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestCreateTokenHandler(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/v1/tokens", "", domain.TokenCreateReq{ServiceID: 1, VisitorName: "Ada"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var token domain.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatal(err)
	}
	if token.TokenNumber != 1 {
		t.Errorf("token_number = %d, want 1", token.TokenNumber)
	}
	if token.Status != domain.TokenWaiting {
		t.Errorf("status = %s, want waiting", token.Status)
	}
	if token.VisitorName != "Ada" {
		t.Errorf("visitor_name = %q", token.VisitorName)
	}
}

func TestCreateTokenHandlerValidation(t *testing.T) {
	srv, _ := setupTestServer(t)

	tests := []struct {
		name     string
		body     interface{}
		wantCode string
	}{
		{"missing service_id", map[string]string{"visitor_name": "Ada"}, CodeInvalidInput},
		{"unknown service", domain.TokenCreateReq{ServiceID: 42}, CodeInvalidService},
		{"inactive service", domain.TokenCreateReq{ServiceID: 2}, CodeInvalidService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, "POST", srv.URL+"/v1/tokens", "", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if e := decodeError(t, resp); e.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", e.Code, tt.wantCode)
			}
		})
	}
}

func TestCreateTokenHandlerClaimsEmail(t *testing.T) {
	srv, repo := setupTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/v1/tokens", staffToken(t), domain.TokenCreateReq{ServiceID: 1})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var token domain.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatal(err)
	}
	stored, err := repo.GetByID(context.Background(), token.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.VisitorEmail != "staff@clinic.test" {
		t.Errorf("visitor_email = %q, want claims email", stored.VisitorEmail)
	}
	if stored.UserID == nil || *stored.UserID != 7 {
		t.Errorf("user_id = %v, want 7", stored.UserID)
	}
}

func TestUpdateTokenStatusHandler(t *testing.T) {
	srv, _ := setupTestServer(t)
	bearer := staffToken(t)

	resp := doJSON(t, "POST", srv.URL+"/v1/tokens", "", domain.TokenCreateReq{ServiceID: 1})
	var token domain.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	url := fmt.Sprintf("%s/v1/tokens/%d/status", srv.URL, token.ID)

	resp = doJSON(t, "PATCH", url, bearer, domain.TokenStatusReq{Status: "calling"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("waiting -> calling status = %d, want 200", resp.StatusCode)
	}
	var updated domain.Token
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if updated.Status != domain.TokenCalling {
		t.Errorf("status = %s, want calling", updated.Status)
	}
	if updated.TokenNumber != token.TokenNumber {
		t.Errorf("token number changed: %d -> %d", token.TokenNumber, updated.TokenNumber)
	}
}

func TestUpdateTokenStatusHandlerErrors(t *testing.T) {
	srv, _ := setupTestServer(t)
	bearer := staffToken(t)

	resp := doJSON(t, "POST", srv.URL+"/v1/tokens", "", domain.TokenCreateReq{ServiceID: 1})
	var token domain.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	url := fmt.Sprintf("%s/v1/tokens/%d/status", srv.URL, token.ID)

	// No bearer token.
	resp = doJSON(t, "PATCH", url, "", domain.TokenStatusReq{Status: "calling"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown status string.
	resp = doJSON(t, "PATCH", url, bearer, domain.TokenStatusReq{Status: "done"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status string = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != CodeInvalidInput {
		t.Errorf("code = %s, want %s", e.Code, CodeInvalidInput)
	}

	// Skipping the calling step is rejected and both states are named.
	resp = doJSON(t, "PATCH", url, bearer, domain.TokenStatusReq{Status: "completed"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("waiting -> completed status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != CodeIllegalTransition || e.Error != `illegal transition from "waiting" to "completed"` {
		t.Errorf("unexpected error body: %+v", e)
	}

	// Unknown token.
	resp = doJSON(t, "PATCH", srv.URL+"/v1/tokens/9999/status", bearer, domain.TokenStatusReq{Status: "calling"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown token status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTokensByServiceHandler(t *testing.T) {
	srv, _ := setupTestServer(t)

	for i := 0; i < 3; i++ {
		resp := doJSON(t, "POST", srv.URL+"/v1/tokens", "", domain.TokenCreateReq{ServiceID: 1})
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/v1/tokens-by-service?service=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var tokens []domain.Token
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}
	for i, token := range tokens {
		if token.TokenNumber != i+1 {
			t.Errorf("position %d has number %d", i, token.TokenNumber)
		}
	}

	// Missing and malformed query parameter.
	for _, q := range []string{"", "?service=abc"} {
		resp, err := http.Get(srv.URL + "/v1/tokens-by-service" + q)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("query %q status = %d, want 400", q, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestCancelAllHandler(t *testing.T) {
	srv, _ := setupTestServer(t)
	bearer := staffToken(t)

	for i := 0; i < 4; i++ {
		resp := doJSON(t, "POST", srv.URL+"/v1/tokens", "", domain.TokenCreateReq{ServiceID: 1})
		resp.Body.Close()
	}

	url := srv.URL + "/v1/services/1/cancel-all"

	resp := doJSON(t, "POST", url, bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if result["cancelled"] != 4 {
		t.Errorf("cancelled = %d, want 4", result["cancelled"])
	}

	// Second run is a no-op.
	resp = doJSON(t, "POST", url, bearer, nil)
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if result["cancelled"] != 0 {
		t.Errorf("rerun cancelled = %d, want 0", result["cancelled"])
	}

	// Staff only.
	resp = doJSON(t, "POST", url, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}
