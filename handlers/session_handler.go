package handlers

import (
	"context"
	"net/http"

	"github.com/helpdesk/ticket-gateway/middleware"
	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/services/session"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// SessionManager starts and ends sessions
type SessionManager interface {
	Login(ctx context.Context, token string, userID int64) (*session.Session, error)
	Logout(token string) bool
}

// SessionAuditor records session lifecycle events
type SessionAuditor interface {
	LogSessionLogin(userID int64, sessionID string, meta audit.RequestMeta) error
	LogSessionLogout(userID int64, sessionID string, meta audit.RequestMeta) error
}

// SessionResponse is returned after login
type SessionResponse struct {
	SessionID   string    `json:"session_id"`
	User        *UserInfo `json:"user"`
	Permissions []string  `json:"permissions"`
}

// SessionHandler handles the login and logout hooks
type SessionHandler struct {
	sessions SessionManager
	auditor  SessionAuditor
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler. auditor may be nil.
func NewSessionHandler(sessions SessionManager, auditor SessionAuditor, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		auditor:  auditor,
		logger:   logger,
	}
}

// HandleLogin handles POST /api/v1/session
// Reloads the actor and starts a fresh session with an empty permission cache
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := middleware.GetClaimsFromContext(ctx)
	token := middleware.GetTokenFromContext(ctx)
	if claims == nil || token == "" {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}

	s, err := h.sessions.Login(ctx, token, claims.UserID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if h.auditor != nil {
		if err := h.auditor.LogSessionLogin(claims.UserID, s.ID.String(), requestMeta(r)); err != nil {
			h.logger.Warn("failed to audit login", zap.Error(err))
		}
	}

	_ = utils.WriteCreated(w, SessionResponse{
		SessionID:   s.ID.String(),
		User:        newUserInfo(s),
		Permissions: s.Evaluator().Permissions().IDs(),
	})
}

// HandleLogout handles DELETE /api/v1/session
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := middleware.GetTokenFromContext(ctx)
	s := middleware.GetSessionFromContext(ctx)
	if token == "" || s == nil {
		HandleServiceError(w, services.ErrNoSession, h.logger)
		return
	}

	userID := s.UserID()
	sessionID := s.ID.String()
	if h.sessions.Logout(token) && h.auditor != nil {
		if err := h.auditor.LogSessionLogout(userID, sessionID, requestMeta(r)); err != nil {
			h.logger.Warn("failed to audit logout", zap.Error(err))
		}
	}

	utils.WriteNoContent(w)
}
