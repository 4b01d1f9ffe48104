package handlers

import (
	"net/http"

	"github.com/helpdesk/ticket-gateway/services/permission"
	"github.com/helpdesk/ticket-gateway/services/session"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// UserInfo is the caller profile exposed to the frontend
type UserInfo struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	Username     string   `json:"username"`
	FullName     string   `json:"full_name,omitempty"`
	DepartmentID *int64   `json:"department_id,omitempty"`
	Roles        []string `json:"roles"`
	IsAdmin      bool     `json:"is_admin"`
	IsManager    bool     `json:"is_manager"`
}

func newUserInfo(s *session.Session) *UserInfo {
	actor := s.Actor()
	if actor == nil {
		return nil
	}
	eval := s.Evaluator()
	return &UserInfo{
		ID:           actor.ID,
		Email:        actor.Email,
		Username:     actor.Username,
		FullName:     actor.FullName,
		DepartmentID: actor.DepartmentID,
		Roles:        actor.RoleNames(),
		IsAdmin:      eval.IsAdmin(),
		IsManager:    eval.IsManager(),
	}
}

// PermissionsResponse lists the caller's resolved permissions
type PermissionsResponse struct {
	Permissions []string `json:"permissions"`
	IsAdmin     bool     `json:"is_admin"`
	IsManager   bool     `json:"is_manager"`
}

// CheckRequest asks whether the caller satisfies a requirement
type CheckRequest struct {
	PermissionID string   `json:"permission_id,omitempty" validate:"omitempty,max=100,permission_id"`
	Permissions  []string `json:"permissions,omitempty" validate:"omitempty,max=100,dive,required,max=100,permission_id"`
	RequireAll   bool     `json:"require_all,omitempty"`
}

// CheckResponse is the result of a permission check
type CheckResponse struct {
	Granted bool `json:"granted"`
}

// MeHandler serves the caller's own profile and permissions
type MeHandler struct {
	logger *zap.Logger
}

// NewMeHandler creates a new MeHandler
func NewMeHandler(logger *zap.Logger) *MeHandler {
	return &MeHandler{logger: logger}
}

// HandleGetMe handles GET /api/v1/me
func (h *MeHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}
	_ = utils.WriteOK(w, newUserInfo(s))
}

// HandleGetPermissions handles GET /api/v1/me/permissions
func (h *MeHandler) HandleGetPermissions(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}
	eval := s.Evaluator()
	_ = utils.WriteOK(w, PermissionsResponse{
		Permissions: eval.Permissions().IDs(),
		IsAdmin:     eval.IsAdmin(),
		IsManager:   eval.IsManager(),
	})
}

// HandleCheck handles POST /api/v1/me/permissions/check
// A single permission_id takes priority over the permissions list; an empty
// request is public and always granted.
func (h *MeHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	var req CheckRequest
	if err := decodeJSON(r, w, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	granted := permission.Allowed(s.Evaluator(), permission.Requirement{
		PermissionID: req.PermissionID,
		Permissions:  req.Permissions,
		RequireAll:   req.RequireAll,
	})
	_ = utils.WriteOK(w, CheckResponse{Granted: granted})
}
