package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helpdesk/ticket-gateway/app"
	"github.com/helpdesk/ticket-gateway/auth"
	"github.com/helpdesk/ticket-gateway/config"
	"github.com/helpdesk/ticket-gateway/middleware"
	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/proxy"
	"github.com/helpdesk/ticket-gateway/repositories"
	"github.com/google/uuid"
	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/services/permission"
	"github.com/helpdesk/ticket-gateway/services/role"
	"github.com/helpdesk/ticket-gateway/services/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// trailStore is an in-memory audit repository
type trailStore struct {
	entries []*models.AuditLog
}

func (s *trailStore) Insert(_ context.Context, log *models.AuditLog) error {
	s.entries = append(s.entries, log)
	return nil
}

func (s *trailStore) GetByID(_ context.Context, id uuid.UUID) (*models.AuditLog, error) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *trailStore) List(context.Context, models.AuditFilter) ([]*models.AuditLog, error) {
	return s.entries, nil
}

func (s *trailStore) WithTx(repositories.Transaction) repositories.AuditRepository { return s }

const (
	adminID    int64 = 1
	agentID    int64 = 2
	analystID  int64 = 3
	inactiveID int64 = 4
)

type actorStore map[int64]*models.User

func (s actorStore) GetByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, repositories.ErrNotFound
}

// countingActors records how often the actor is loaded
type countingActors struct {
	actorStore
	loads atomic.Int32
}

func (c *countingActors) GetByID(ctx context.Context, id int64) (*models.User, error) {
	c.loads.Add(1)
	return c.actorStore.GetByID(ctx, id)
}

func testRole(id int64, name string, ids ...string) models.Role {
	refs := make(models.PermissionRefs, 0, len(ids))
	for _, p := range ids {
		refs = append(refs, models.RefID(p))
	}
	return models.Role{ID: id, Name: name, Permissions: refs}
}

func testActors() actorStore {
	return actorStore{
		adminID:    {ID: adminID, Email: "admin@example.com", IsActive: true, Roles: []models.Role{testRole(1, "Admin")}},
		agentID:    {ID: agentID, Email: "agent@example.com", IsActive: true, Roles: []models.Role{testRole(2, "agent", "ticket:view")}},
		analystID:  {ID: analystID, Email: "analyst@example.com", IsActive: true, Roles: []models.Role{testRole(3, "analyst", "analytics:view", "role:view")}},
		inactiveID: {ID: inactiveID, Email: "gone@example.com", IsActive: false},
	}
}

// upstreamEcho reports what the upstream received
type upstreamEcho struct {
	Path          string `json:"path"`
	Authorization string `json:"authorization"`
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(upstreamEcho{
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	server    *httptest.Server
	validator *auth.Validator
	sessions  *session.Manager
	actors    *countingActors
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := e.validator.Sign(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Auth: config.AuthConfig{
			JWTSecret:    "test-secret",
			JWTAlgorithm: "HS256",
			CookieName:   "auth_token",
		},
		Upstreams: config.UpstreamConfig{
			Services: map[string]string{
				"tickets":   backendURL,
				"analytics": backendURL,
			},
			Timeout: 5 * time.Second,
		},
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	backend := newBackend(t)

	cfg := testConfig(backend.URL)
	if mutate != nil {
		mutate(cfg)
	}

	validator, err := auth.NewValidator(auth.Config{Secret: cfg.Auth.JWTSecret, Algorithm: cfg.Auth.JWTAlgorithm})
	require.NoError(t, err)

	actors := &countingActors{actorStore: testActors()}
	sessions := session.NewManager(session.NewStore(100, time.Minute), actors, nil, 0, logger)

	upstreams, err := proxy.New(cfg.Upstreams, cfg.Auth.CookieName, logger)
	require.NoError(t, err)

	trail := &trailStore{entries: []*models.AuditLog{
		models.NewAuditLog(models.AuditActionSessionLogin, "session").WithUser(agentID),
	}}

	catalog := permission.NewCatalog(nil, logger)
	deps := &app.Dependencies{
		Config:          cfg,
		Logger:          logger,
		TokenValidator:  validator,
		Sessions:        sessions,
		Catalog:         catalog,
		RoleService:     role.NewService(nil, nil, nil, catalog, sessions, nil, logger),
		Audit:           audit.NewService(trail, logger, audit.Config{}),
		Proxy:           upstreams,
		AuthMiddleware:  middleware.NewAuthMiddleware(validator, sessions, cfg.Auth.CookieName, logger),
		AuthzMiddleware: middleware.NewAuthzMiddleware(nil, logger),
	}

	srv := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, validator: validator, sessions: sessions, actors: actors}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("liveness", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("readiness probes upstreams", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/readyz", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data struct {
				Status    string            `json:"status"`
				Upstreams map[string]string `json:"upstreams"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Data.Status)
		assert.Equal(t, map[string]string{"tickets": "healthy", "analytics": "healthy"}, body.Data.Upstreams)
	})

	t.Run("status", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/status", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data struct {
				Environment string   `json:"environment"`
				Services    []string `json:"services"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "test", body.Data.Environment)
		assert.Equal(t, []string{"analytics", "tickets"}, body.Data.Services)
	})
}

func TestAPIEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.token(t, adminID)
	agent := env.token(t, agentID)
	analyst := env.token(t, analystID)
	inactive := env.token(t, inactiveID)
	unknown := env.token(t, 99)

	testCases := []struct {
		name           string
		method         string
		path           string
		token          string
		body           string
		expectedStatus int
	}{
		{"me unauthenticated", "GET", "/api/v1/me", "", "", http.StatusUnauthorized},
		{"me with garbage token", "GET", "/api/v1/me", "not-a-jwt", "", http.StatusUnauthorized},
		{"me for unknown user", "GET", "/api/v1/me", unknown, "", http.StatusUnauthorized},
		{"me for inactive user", "GET", "/api/v1/me", inactive, "", http.StatusForbidden},
		{"me", "GET", "/api/v1/me", agent, "", http.StatusOK},
		{"my permissions", "GET", "/api/v1/me/permissions", agent, "", http.StatusOK},
		{"check", "POST", "/api/v1/me/permissions/check", agent, `{"permission_id":"ticket:view"}`, http.StatusOK},
		{"catalog requires role:view", "GET", "/api/v1/permissions", agent, "", http.StatusForbidden},
		{"catalog for analyst", "GET", "/api/v1/permissions", analyst, "", http.StatusOK},
		{"catalog for admin", "GET", "/api/v1/permissions", admin, "", http.StatusOK},
		{"catalog entry", "GET", "/api/v1/permissions/ticket:view", analyst, "", http.StatusOK},
		{"catalog entry unknown", "GET", "/api/v1/permissions/ticket:fly", analyst, "", http.StatusNotFound},
		{"role update requires role:update", "PUT", "/api/v1/roles/2/permissions", analyst, `{"permissions":[]}`, http.StatusForbidden},
		{"role update unauthenticated", "PUT", "/api/v1/roles/2/permissions", "", `{"permissions":[]}`, http.StatusUnauthorized},
		{"login unauthenticated", "POST", "/api/v1/session", "", "", http.StatusUnauthorized},
		{"audit trail for admin", "GET", "/api/v1/audit?action=session_login&limit=10", admin, "", http.StatusOK},
		{"audit trail bad filter", "GET", "/api/v1/audit?limit=abc", admin, "", http.StatusBadRequest},
		{"audit trail requires system:logs", "GET", "/api/v1/audit", agent, "", http.StatusForbidden},
		{"audit entry unknown", "GET", "/api/v1/audit/" + uuid.NewString(), admin, "", http.StatusNotFound},
		{"not found", "GET", "/api/v1/nonexistent", agent, "", http.StatusNotFound},
		{"unknown service", "GET", "/api/printers/1", "", "", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestMeReportsRoleFlags(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/me", env.token(t, adminID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			ID      int64    `json:"id"`
			Roles   []string `json:"roles"`
			IsAdmin bool     `json:"is_admin"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, adminID, body.Data.ID)
	assert.Equal(t, []string{"Admin"}, body.Data.Roles)
	assert.True(t, body.Data.IsAdmin)
}

func TestCookieAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/me/permissions", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: env.token(t, agentID)})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, agentID)

	resp := env.do(t, http.MethodPost, "/api/v1/session", token, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, env.sessions.Store().Len())
	assert.Equal(t, int32(1), env.actors.loads.Load(), "login loads the actor once")

	resp = env.do(t, http.MethodDelete, "/api/v1/session", token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, env.sessions.Store().Len())
}

func TestLoginRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/v1/session", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/v1/session", "not-a-jwt", "").StatusCode)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/v1/session", env.token(t, inactiveID), "").StatusCode)
	assert.Equal(t, 0, env.sessions.Store().Len())
}

func TestProxyRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	agent := env.token(t, agentID)
	analyst := env.token(t, analystID)

	t.Run("forwards with bearer token", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/tickets/123", agent, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var echo upstreamEcho
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&echo))
		assert.Equal(t, "/123", echo.Path)
		assert.Equal(t, "Bearer "+agent, echo.Authorization)
	})

	t.Run("ungated service still requires a token", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/tickets", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("gated service requires permission", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/analytics/overview", "", "").StatusCode)
		assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/analytics/overview", agent, "").StatusCode)
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/analytics/overview", analyst, "").StatusCode)
	})
}

func TestProxyRoutes_Authentication(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Upstreams.Services["tickets"] = backend.URL
		cfg.Upstreams.Services["users"] = backend.URL
	})

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
		wantHits int32
	}{
		{"anonymous ticket request", "/api/tickets/x", "", http.StatusUnauthorized, 0},
		{"forged token", "/api/tickets/x", "not-a-jwt", http.StatusUnauthorized, 0},
		{"anonymous user profile", "/api/users/profile", "", http.StatusUnauthorized, 0},
		{"auth prefix is not a path match", "/api/users/authx", "", http.StatusUnauthorized, 0},
		{"public login path", "/api/users/auth/login", "", http.StatusOK, 1},
		{"authenticated ticket request", "/api/tickets/x", env.token(t, agentID), http.StatusOK, 2},
		{"inactive actor", "/api/tickets/x", env.token(t, inactiveID), http.StatusForbidden, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, tt.token, "")
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/status", "", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/status", "", "").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/v1/status", "", "").StatusCode)

	// Health checks sit outside /api
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", "").StatusCode)
}
