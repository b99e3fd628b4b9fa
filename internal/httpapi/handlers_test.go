package httpapi

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

	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/change"
	"github.com/forgeerp/forgeerp/internal/registry"
	"github.com/forgeerp/forgeerp/internal/tenant"
	"github.com/forgeerp/forgeerp/internal/workflow"
)

// stubReviews is a minimal in-process review system.
type stubReviews struct {
	mu      sync.Mutex
	next    int
	state   map[int]*change.RemoteRequest
	reviews map[int][]change.Review
}

func newStubReviews() *stubReviews {
	return &stubReviews{
		next:    10,
		state:   make(map[int]*change.RemoteRequest),
		reviews: make(map[int][]change.Review),
	}
}

func (s *stubReviews) CreateReviewRequest(_ context.Context, title, body, sourceRef, targetRef string) (*change.RemoteRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	r := &change.RemoteRequest{Number: s.next, State: "open", URL: fmt.Sprintf("https://example.test/%d", s.next)}
	s.state[r.Number] = r
	cp := *r
	return &cp, nil
}

func (s *stubReviews) GetReviewRequest(_ context.Context, number int) (*change.RemoteRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state[number]
	if !ok {
		return nil, change.ErrExternalUnavailable
	}
	cp := *r
	return &cp, nil
}

func (s *stubReviews) ListReviews(_ context.Context, number int) ([]change.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]change.Review, len(s.reviews[number]))
	copy(out, s.reviews[number])
	return out, nil
}

type testEnv struct {
	api     *API
	handler http.Handler
	reviews *stubReviews
	auth    *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := auth.NewMemoryStore()
	authSvc, err := auth.NewService(users, users, []byte("test-secret"))
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	tenants, err := tenant.NewService(tenant.NewMemoryStore())
	if err != nil {
		t.Fatalf("tenant.NewService: %v", err)
	}
	modules, err := registry.NewService(registry.NewMemoryStore(), tenants)
	if err != nil {
		t.Fatalf("registry.NewService: %v", err)
	}
	reviews := newStubReviews()
	changes, err := change.NewService(change.NewMemoryStore(), reviews)
	if err != nil {
		t.Fatalf("change.NewService: %v", err)
	}
	gate, err := change.NewGate(changes, authSvc)
	if err != nil {
		t.Fatalf("change.NewGate: %v", err)
	}
	workflows, err := workflow.NewGenerator(t.TempDir(), tenants, modules)
	if err != nil {
		t.Fatalf("workflow.NewGenerator: %v", err)
	}
	api, err := New(Deps{
		Auth:      authSvc,
		Tenants:   tenants,
		Modules:   modules,
		Changes:   changes,
		Gate:      gate,
		Workflows: workflows,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{api: api, handler: api.Handler(), reviews: reviews, auth: authSvc}
}

func (e *testEnv) token(t *testing.T, role auth.Role) string {
	t.Helper()
	username := "u-" + string(role)
	password := "pass-" + string(role)
	if _, err := e.auth.CreateUser(context.Background(), username, username+"@forgeerp.example", password, "", role); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, _, _, err := e.auth.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.auth.CreateUser(context.Background(), "operator", "op@forgeerp.example", "hunter2hunter", "", auth.RoleAdmin); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "operator", "password": "hunter2hunter",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" || resp.Role != "admin" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/v1/auth/me", resp.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "operator", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/clients", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/clients", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestClientCreateRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.token(t, auth.RoleUser)
	adminToken := env.token(t, auth.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/v1/clients", userToken, map[string]string{
		"name": "Racco", "code": "racco",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user create client: expected 403, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/clients", adminToken, map[string]string{
		"name": "Racco", "code": "racco",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create client: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/clients", adminToken, map[string]string{
		"name": "Racco again", "code": "racco",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate code: expected 409, got %d", rec.Code)
	}
}

func TestModuleInstallFlow(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, auth.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/v1/clients", adminToken, map[string]string{"name": "Racco", "code": "racco"})
	var client tenant.Client
	decodeBody(t, rec, &client)

	rec = env.do(t, http.MethodPost, "/v1/modules", adminToken, map[string]any{"name": "hetzner"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create module: status %d", rec.Code)
	}
	var mod registry.Module
	decodeBody(t, rec, &mod)

	path := "/v1/clients/" + client.ID + "/modules/" + mod.ID
	rec = env.do(t, http.MethodPost, path+"/install", adminToken, map[string]any{"config": map[string]any{"dc": "fsn1"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("install: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, path+"/install", adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double install: expected 409, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, path, adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("uninstall: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/clients/"+client.ID+"/modules", adminToken, nil)
	var listing struct {
		Installations []registry.Installation `json:"installations"`
		Effective     []registry.Module       `json:"effective"`
	}
	decodeBody(t, rec, &listing)
	if len(listing.Installations) != 1 || len(listing.Effective) != 0 {
		t.Fatalf("unexpected listing after uninstall: %+v", listing)
	}
}

func TestGraveActionGateOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, auth.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/v1/actions/authorize", adminToken, map[string]string{
		"kind": "deploy", "target": "t1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("authorize: status %d", rec.Code)
	}
	var decision change.Decision
	decodeBody(t, rec, &decision)
	if decision.Allowed || decision.Reason != change.ReasonNoRequest {
		t.Fatalf("expected no-request denial, got %+v", decision)
	}

	rec = env.do(t, http.MethodPost, "/v1/changes", adminToken, map[string]string{
		"title": "deploy t1", "kind": "deploy", "target": "t1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("file change: status %d body %s", rec.Code, rec.Body.String())
	}
	var filed change.Request
	decodeBody(t, rec, &filed)

	env.reviews.mu.Lock()
	env.reviews.reviews[filed.Number] = []change.Review{
		{Reviewer: "alice", State: "approved", SubmittedAt: time.Now().UTC()},
	}
	env.reviews.mu.Unlock()

	rec = env.do(t, http.MethodPost, "/v1/actions/authorize", adminToken, map[string]string{
		"kind": "deploy", "target": "t1",
	})
	decodeBody(t, rec, &decision)
	if !decision.Allowed {
		t.Fatalf("expected allow after approval, got %+v", decision)
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/changes/%d/status", filed.Number), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var status change.Request
	decodeBody(t, rec, &status)
	if !status.IsApproved || status.ApprovalCount != 1 {
		t.Fatalf("status endpoint did not reconcile: %+v", status)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}
