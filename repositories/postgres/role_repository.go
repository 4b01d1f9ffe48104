package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/repositories"
	"go.uber.org/zap"
)

// RoleRepository implements the repositories.RoleRepository interface.
// Permissions live in a JSONB column holding identifiers or permission objects.
type RoleRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), permissions, created_at, updated_at
		FROM roles
		WHERE id = $1
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	role := &models.Role{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.Permissions,
		&role.CreatedAt,
		&role.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role not found: %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// List retrieves all roles ordered by name
func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), permissions, created_at, updated_at
		FROM roles
		ORDER BY name
	`

	roles, err := r.queryRoles(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Role, len(roles))
	for i := range roles {
		out[i] = &roles[i]
	}
	return out, nil
}

// ListByUserID retrieves the roles assigned to a user
func (r *RoleRepository) ListByUserID(ctx context.Context, userID int64) ([]models.Role, error) {
	query := `
		SELECT r.id, r.name, COALESCE(r.description, ''), r.permissions, r.created_at, r.updated_at
		FROM roles r
		JOIN user_role ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id
	`

	return r.queryRoles(ctx, query, userID)
}

// SetPermissions replaces the permission list of a role
func (r *RoleRepository) SetPermissions(ctx context.Context, id int64, permissions models.PermissionRefs) error {
	query := `
		UPDATE roles
		SET permissions = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query, id, permissions)
	if err != nil {
		return fmt.Errorf("failed to update role permissions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("role not found: %d: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("role permissions updated", zap.Int64("id", id), zap.Int("permissions", len(permissions)))
	return nil
}

// WithTx returns a copy of the repository that runs every statement on tx
func (r *RoleRepository) WithTx(tx repositories.Transaction) repositories.RoleRepository {
	return &RoleRepository{
		db:     r.db,
		tx:     asTransaction(tx),
		logger: r.logger,
	}
}

// queryRoles is a helper method to query multiple roles
func (r *RoleRepository) queryRoles(ctx context.Context, query string, args ...interface{}) ([]models.Role, error) {
	executor := boundExecutor(ctx, r.db, r.tx)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]models.Role, 0)
	for rows.Next() {
		var role models.Role
		err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.Description,
			&role.Permissions,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return roles, nil
}
