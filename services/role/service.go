package role

import (
	"context"
	"errors"
	"fmt"

	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/repositories"
	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/services/audit"
	"go.uber.org/zap"
)

// Invalidator drops cached permissions of the given users
type Invalidator interface {
	InvalidateUsers(ctx context.Context, userIDs ...int64) error
}

// AuditLogger records role changes
type AuditLogger interface {
	LogRolePermissionsUpdated(actorID, roleID int64, permissionIDs []string, affectedUsers int, meta audit.RequestMeta) error
	LogPermissionsInvalidated(userIDs []int64, reason string) error
}

// PermissionCatalog lists the permission ids a role may be granted
type PermissionCatalog interface {
	List(ctx context.Context) []models.Permission
}

// UpdateResult describes a completed permission replacement
type UpdateResult struct {
	Role          *models.Role `json:"role"`
	AffectedUsers []int64      `json:"affected_users"`
}

// Service manages role permission assignments
type Service struct {
	roles       repositories.RoleRepository
	users       repositories.UserRepository
	txMgr       repositories.TransactionManager
	catalog     PermissionCatalog
	invalidator Invalidator
	audit       AuditLogger
	logger      *zap.Logger
}

// NewService creates a new role service. catalog and auditLogger may be nil;
// without a catalog only the resource:action shape of ids is checked.
func NewService(
	roles repositories.RoleRepository,
	users repositories.UserRepository,
	txMgr repositories.TransactionManager,
	catalog PermissionCatalog,
	invalidator Invalidator,
	auditLogger AuditLogger,
	logger *zap.Logger,
) *Service {
	return &Service{
		roles:       roles,
		users:       users,
		txMgr:       txMgr,
		catalog:     catalog,
		invalidator: invalidator,
		audit:       auditLogger,
		logger:      logger,
	}
}

// Get returns a role by id
func (s *Service) Get(ctx context.Context, roleID int64) (*models.Role, error) {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return role, nil
}

// List returns every role
func (s *Service) List(ctx context.Context) ([]*models.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return roles, nil
}

// SetPermissions replaces the permission list of roleID and invalidates the
// sessions of every user holding it
func (s *Service) SetPermissions(ctx context.Context, actorID, roleID int64, permissionIDs []string, meta audit.RequestMeta) (*UpdateResult, error) {
	if roleID <= 0 {
		return nil, services.ErrInvalidRoleID
	}

	known := s.knownPermissions(ctx)
	refs := make(models.PermissionRefs, 0, len(permissionIDs))
	ids := make([]string, 0, len(permissionIDs))
	seen := make(map[string]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		if _, _, ok := models.ParsePermissionID(id); !ok {
			return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid permission identifier", nil).
				WithDetail("permission_id", id)
		}
		if _, ok := known[id]; known != nil && !ok {
			return nil, services.NewDomainError(services.ErrorTypeValidation, "unknown permission", nil).
				WithDetail("permission_id", id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		refs = append(refs, models.RefID(id))
	}

	result, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*UpdateResult, error) {
		roles := s.roles.WithTx(tx)

		role, err := roles.GetByID(ctx, roleID)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if err := roles.SetPermissions(ctx, roleID, refs); err != nil {
			return nil, mapRepoError(err)
		}
		holders, err := s.users.ListIDsByRole(ctx, roleID)
		if err != nil {
			return nil, services.ErrDatabaseError.Wrap(err)
		}

		role.Permissions = refs
		return &UpdateResult{Role: role, AffectedUsers: holders}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role permissions updated",
		zap.Int64("role_id", roleID),
		zap.Int64("user_id", actorID),
		zap.Int("permissions", len(ids)),
		zap.Int("affected_users", len(result.AffectedUsers)),
	)

	// The update is committed; a failed broadcast only delays other instances
	if err := s.invalidator.InvalidateUsers(ctx, result.AffectedUsers...); err != nil {
		s.logger.Warn("permission invalidation incomplete",
			zap.Int64("role_id", roleID),
			zap.Error(err),
		)
	}

	if s.audit != nil {
		if err := s.audit.LogRolePermissionsUpdated(actorID, roleID, ids, len(result.AffectedUsers), meta); err != nil {
			s.logger.Warn("failed to audit role update", zap.Error(err))
		}
		if len(result.AffectedUsers) > 0 {
			if err := s.audit.LogPermissionsInvalidated(result.AffectedUsers, fmt.Sprintf("role %d updated", roleID)); err != nil {
				s.logger.Warn("failed to audit invalidation", zap.Error(err))
			}
		}
	}

	return result, nil
}

func mapRepoError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrRoleNotFound
	}
	return services.ErrDatabaseError.Wrap(err)
}

// knownPermissions returns the catalog ids, or nil when no catalog is set
func (s *Service) knownPermissions(ctx context.Context) map[string]struct{} {
	if s.catalog == nil {
		return nil
	}
	perms := s.catalog.List(ctx)
	known := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		known[p.ID] = struct{}{}
	}
	return known
}
