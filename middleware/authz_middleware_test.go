package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/services/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockAccessAuditor is a mock implementation of AccessAuditor
type MockAccessAuditor struct {
	mock.Mock
}

func (m *MockAccessAuditor) LogAccessDenied(userID *int64, path string, requirement interface{}, statusCode int, meta audit.RequestMeta) error {
	return m.Called(userID, path, requirement, statusCode, meta).Error(0)
}

func role(name string, perms ...string) models.Role {
	refs := make(models.PermissionRefs, 0, len(perms))
	for _, p := range perms {
		refs = append(refs, models.RefID(p))
	}
	return models.Role{Name: name, Permissions: refs}
}

func serve(mw func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)
	return w
}

func requestWithRoles(roles ...models.Role) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/resource", nil)
	return req.WithContext(WithSession(req.Context(), newTestSession(9, "tok", roles...)))
}

func TestAuthzMiddleware_Require(t *testing.T) {
	agent := role("Agent", "ticket:view", "ticket:update", "user:view")

	tests := []struct {
		name       string
		mw         func(m *AuthzMiddleware) func(http.Handler) http.Handler
		roles      []models.Role
		wantStatus int
	}{
		{
			name:       "single permission held",
			mw:         func(m *AuthzMiddleware) func(http.Handler) http.Handler { return m.RequirePermission("ticket:view") },
			roles:      []models.Role{agent},
			wantStatus: http.StatusOK,
		},
		{
			name:       "single permission missing",
			mw:         func(m *AuthzMiddleware) func(http.Handler) http.Handler { return m.RequirePermission("ticket:delete") },
			roles:      []models.Role{agent},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "any of",
			mw:         func(m *AuthzMiddleware) func(http.Handler) http.Handler { return m.RequireAny("ticket:delete", "user:view") },
			roles:      []models.Role{agent},
			wantStatus: http.StatusOK,
		},
		{
			name:       "all of with one missing",
			mw:         func(m *AuthzMiddleware) func(http.Handler) http.Handler { return m.RequireAll("ticket:view", "ticket:delete") },
			roles:      []models.Role{agent},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin bypass",
			mw:         func(m *AuthzMiddleware) func(http.Handler) http.Handler { return m.RequirePermission("anything:at_all") },
			roles:      []models.Role{role("Administrator")},
			wantStatus: http.StatusOK,
		},
		{
			name:       "manager prefix",
			mw:         func(m *AuthzMiddleware) func(http.Handler) http.Handler { return m.RequirePermission("analytics:export") },
			roles:      []models.Role{role("Manager")},
			wantStatus: http.StatusOK,
		},
		{
			name:       "manager outside prefix",
			mw:         func(m *AuthzMiddleware) func(http.Handler) http.Handler { return m.RequirePermission("user:delete") },
			roles:      []models.Role{role("Manager")},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin route",
			mw:         func(m *AuthzMiddleware) func(http.Handler) http.Handler { return m.RequireAdmin },
			roles:      []models.Role{agent},
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := new(MockAccessAuditor)
			auditor.On("LogAccessDenied", mock.Anything, "/api/v1/resource", mock.Anything, tt.wantStatus, mock.Anything).Return(nil)
			m := NewAuthzMiddleware(auditor, zap.NewNop())

			w := serve(tt.mw(m), requestWithRoles(tt.roles...))
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				auditor.AssertNotCalled(t, "LogAccessDenied", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			} else {
				auditor.AssertNumberOfCalls(t, "LogAccessDenied", 1)
			}
		})
	}
}

func TestAuthzMiddleware_FailsClosedWithoutSession(t *testing.T) {
	auditor := new(MockAccessAuditor)
	auditor.On("LogAccessDenied", (*int64)(nil), "/api/v1/resource", mock.Anything, http.StatusUnauthorized, mock.Anything).Return(nil)
	m := NewAuthzMiddleware(auditor, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/resource", nil)
	w := serve(m.RequireAll(), req)
	// An empty requirement is public
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(m.RequirePermission("ticket:view"), req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	auditor.AssertExpectations(t)
}

func TestAuthzMiddleware_Guard(t *testing.T) {
	m := NewAuthzMiddleware(nil, zap.NewNop())
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("granted", func(t *testing.T) {
		gate := permission.Gate{Requirement: permission.Requirement{PermissionID: "report:view"}}
		w := serve(m.Guard(gate, nil), requestWithRoles(role("Analyst", "report:view")))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("fallback", func(t *testing.T) {
		gate := permission.Gate{Requirement: permission.Requirement{PermissionID: "report:view"}, HasFallback: true}
		w := serve(m.Guard(gate, fallback), requestWithRoles(role("Agent")))
		assert.Equal(t, http.StatusTeapot, w.Code)
	})

	t.Run("default redirect", func(t *testing.T) {
		gate := permission.Gate{Requirement: permission.Requirement{PermissionID: "report:view"}}
		w := serve(m.Guard(gate, nil), requestWithRoles(role("Agent")))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, permission.DefaultRedirect, w.Header().Get("Location"))
	})

	t.Run("fallback flag without handler redirects", func(t *testing.T) {
		gate := permission.Gate{
			Requirement: permission.Requirement{Permissions: []string{"a:b", "c:d"}, RequireAll: true},
			HasFallback: true,
			RedirectTo:  "/login",
		}
		w := serve(m.Guard(gate, nil), requestWithRoles(role("Agent", "a:b")))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})

	t.Run("anonymous is redirected", func(t *testing.T) {
		gate := permission.Gate{Requirement: permission.Requirement{Permissions: []string{"report:view"}}}
		w := serve(m.Guard(gate, nil), httptest.NewRequest(http.MethodGet, "/reports", nil))
		assert.Equal(t, http.StatusFound, w.Code)
	})

	t.Run("public gate", func(t *testing.T) {
		w := serve(m.Guard(permission.Gate{}, nil), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimitByIP_Authz(t *testing.T) {
	mw := RateLimitByIP(2, time.Minute, zap.NewNop())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
		req.RemoteAddr = addr
		return serve(mw, req).Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1234"))
	// Other clients are unaffected
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234"))
}
