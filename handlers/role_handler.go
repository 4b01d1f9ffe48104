package handlers

import (
	"context"
	"net/http"

	"github.com/helpdesk/ticket-gateway/middleware"
	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/services/role"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// RoleService manages roles and their permissions
type RoleService interface {
	Get(ctx context.Context, roleID int64) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)
	SetPermissions(ctx context.Context, actorID, roleID int64, permissionIDs []string, meta audit.RequestMeta) (*role.UpdateResult, error)
}

// SetPermissionsRequest replaces a role's permission list
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,max=200,dive,required,max=100"`
}

// SetPermissionsResponse reports the updated role
type SetPermissionsResponse struct {
	Role          *models.Role `json:"role"`
	AffectedUsers int          `json:"affected_users"`
}

// RoleHandler handles role administration requests
type RoleHandler struct {
	roles  RoleService
	logger *zap.Logger
}

// NewRoleHandler creates a new RoleHandler
func NewRoleHandler(roles RoleService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{
		roles:  roles,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/roles
func (h *RoleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{"roles": roles})
}

// HandleGet handles GET /api/v1/roles/{id}
func (h *RoleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	roleID, ok := int64Param(r, "id")
	if !ok {
		HandleServiceError(w, services.ErrInvalidRoleID, h.logger)
		return
	}
	found, err := h.roles.Get(r.Context(), roleID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, found)
}

// HandleSetPermissions handles PUT /api/v1/roles/{id}/permissions
func (h *RoleHandler) HandleSetPermissions(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	roleID, ok := int64Param(r, "id")
	if !ok {
		HandleServiceError(w, services.ErrInvalidRoleID, h.logger)
		return
	}

	var req SetPermissionsRequest
	if err := decodeJSON(r, w, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.roles.SetPermissions(r.Context(), s.UserID(), roleID, req.Permissions, requestMeta(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("role permissions replaced",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.Int64("role_id", roleID),
		zap.Int64("user_id", s.UserID()),
		zap.Int("affected_users", len(result.AffectedUsers)))

	_ = utils.WriteOK(w, SetPermissionsResponse{
		Role:          result.Role,
		AffectedUsers: len(result.AffectedUsers),
	})
}
