package middleware

import (
	"net/http"

	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/services/permission"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// AccessAuditor records denied access decisions
type AccessAuditor interface {
	LogAccessDenied(userID *int64, path string, requirement interface{}, statusCode int, meta audit.RequestMeta) error
}

// AuthzMiddleware enforces permission requirements on top of RequireAuth.
// Every check fails closed when no session is present.
type AuthzMiddleware struct {
	auditor AccessAuditor
	logger  *zap.Logger
}

// NewAuthzMiddleware creates a new AuthzMiddleware. auditor may be nil.
func NewAuthzMiddleware(auditor AccessAuditor, logger *zap.Logger) *AuthzMiddleware {
	return &AuthzMiddleware{
		auditor: auditor,
		logger:  logger,
	}
}

// RequirePermission requires a single permission
func (m *AuthzMiddleware) RequirePermission(id string) func(http.Handler) http.Handler {
	return m.Require(permission.Requirement{PermissionID: id})
}

// RequireAny requires at least one of ids
func (m *AuthzMiddleware) RequireAny(ids ...string) func(http.Handler) http.Handler {
	return m.Require(permission.Requirement{Permissions: ids})
}

// RequireAll requires every one of ids
func (m *AuthzMiddleware) RequireAll(ids ...string) func(http.Handler) http.Handler {
	return m.Require(permission.Requirement{Permissions: ids, RequireAll: true})
}

// Require rejects requests whose session does not satisfy req
func (m *AuthzMiddleware) Require(req permission.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if req.Public() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := GetSessionFromContext(r.Context())
			if s == nil {
				m.deny(r, req, http.StatusUnauthorized)
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !permission.Allowed(s.Evaluator(), req) {
				m.deny(r, req, http.StatusForbidden)
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin requires an admin or administrator role
func (m *AuthzMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := GetSessionFromContext(r.Context())
		if s == nil || !s.Evaluator().IsAdmin() {
			m.deny(r, "admin", http.StatusForbidden)
			_ = utils.WriteForbidden(w, "Administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Guard applies a gate to page style routes. Denied requests are served by
// fallback when the gate has one, and redirected otherwise.
func (m *AuthzMiddleware) Guard(gate permission.Gate, fallback http.Handler) func(http.Handler) http.Handler {
	if fallback == nil {
		gate.HasFallback = false
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var checker permission.Checker = denyAll{}
			if s := GetSessionFromContext(r.Context()); s != nil {
				checker = s.Evaluator()
			}

			decision := gate.Decide(checker)
			switch decision.Outcome {
			case permission.Granted:
				next.ServeHTTP(w, r)
			case permission.Fallback:
				m.deny(r, gate.Requirement, http.StatusForbidden)
				fallback.ServeHTTP(w, r)
			default:
				m.deny(r, gate.Requirement, http.StatusFound)
				http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
			}
		})
	}
}

func (m *AuthzMiddleware) deny(r *http.Request, requirement interface{}, status int) {
	ctx := r.Context()
	userID := GetUserIDFromContext(ctx)
	requestID := GetRequestIDFromContext(ctx)

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
		zap.Any("requirement", requirement),
		zap.Int("status", status),
	}
	if userID != nil {
		fields = append(fields, zap.Int64("user_id", *userID))
	}
	m.logger.Warn("access denied", fields...)

	if m.auditor == nil {
		return
	}
	meta := audit.RequestMeta{
		RequestID: requestID,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err := m.auditor.LogAccessDenied(userID, r.URL.Path, requirement, status, meta); err != nil {
		m.logger.Debug("failed to audit access denial", zap.Error(err))
	}
}

// denyAll is the checker used for anonymous requests
type denyAll struct{}

func (denyAll) HasPermission(string) bool       { return false }
func (denyAll) HasAnyPermission([]string) bool  { return false }
func (denyAll) HasAllPermissions([]string) bool { return false }
