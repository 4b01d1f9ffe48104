package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/helpdesk/ticket-gateway/auth"
	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/services/session"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// DefaultCookieName is the cookie the frontend stores its token in
const DefaultCookieName = "auth_token"

// TokenValidator defines the interface for validating bearer tokens
type TokenValidator interface {
	// ValidateToken validates a token and returns claims
	ValidateToken(ctx context.Context, token string) (*auth.ParsedClaims, error)
}

// SessionResolver maps a validated token to the caller's session
type SessionResolver interface {
	Resolve(ctx context.Context, token string, userID int64) (*session.Session, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator  TokenValidator
	sessions   SessionResolver
	cookieName string
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, sessions SessionResolver, cookieName string, logger *zap.Logger) *AuthMiddleware {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &AuthMiddleware{
		validator:  validator,
		sessions:   sessions,
		cookieName: cookieName,
		logger:     logger,
	}
}

// RequireAuth is a middleware that requires a valid token and an active user
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return m.require(next, m.authenticate)
}

// RequireToken only validates the token and attaches its claims. No session
// is resolved, for handlers that build the session themselves.
func (m *AuthMiddleware) RequireToken(next http.Handler) http.Handler {
	return m.require(next, m.validate)
}

func (m *AuthMiddleware) require(next http.Handler, check func(context.Context, string) (context.Context, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := m.ExtractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		ctx, err := check(ctx, token)
		if err != nil {
			m.logger.Warn("authentication failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			writeAuthError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validate(ctx context.Context, token string) (context.Context, error) {
	claims, err := m.validator.ValidateToken(ctx, token)
	if err != nil {
		return ctx, err
	}
	ctx = WithClaims(ctx, claims)
	return WithToken(ctx, token), nil
}

func (m *AuthMiddleware) authenticate(ctx context.Context, token string) (context.Context, error) {
	ctx, err := m.validate(ctx, token)
	if err != nil {
		return ctx, err
	}
	claims := GetClaimsFromContext(ctx)

	s, err := m.sessions.Resolve(ctx, token, claims.UserID)
	if err != nil {
		return ctx, err
	}
	ctx = WithSession(ctx, s)

	m.logger.Debug("authentication successful",
		zap.String("request_id", GetRequestIDFromContext(ctx)),
		zap.Int64("user_id", claims.UserID),
		zap.String("session_id", s.ID.String()))
	return ctx, nil
}

// ExtractToken extracts the token from the Authorization header ("Bearer TOKEN")
// or the auth cookie. The header takes precedence when both are present.
func (m *AuthMiddleware) ExtractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		_ = utils.WriteUnauthorized(w, "Token expired")
	case services.IsForbiddenError(err):
		_ = utils.WriteForbidden(w, "User account is inactive")
	case services.IsNotFoundError(err), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidSubject), errors.Is(err, auth.ErrInvalidIssuer):
		_ = utils.WriteUnauthorized(w, "Invalid or expired token")
	default:
		_ = utils.WriteInternalServerError(w, "Failed to load session")
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
