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

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	roles  *RoleRepository
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		roles:  &RoleRepository{db: db, logger: logger},
		logger: logger,
	}
}

// GetByID retrieves a user and all assigned roles
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, username, full_name, is_active, department_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	user := &models.User{}
	var fullName sql.NullString
	var departmentID sql.NullInt64

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&fullName,
		&user.IsActive,
		&departmentID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.FullName = fullName.String
	if departmentID.Valid {
		dept := departmentID.Int64
		user.DepartmentID = &dept
	}

	roles, err := r.roles.ListByUserID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	r.logger.Debug("user loaded", zap.Int64("id", user.ID), zap.Int("roles", len(roles)))
	return user, nil
}

// ListIDsByRole returns the ids of every user holding the role
func (r *UserRepository) ListIDsByRole(ctx context.Context, roleID int64) ([]int64, error) {
	query := `
		SELECT user_id
		FROM user_role
		WHERE role_id = $1
		ORDER BY user_id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role members: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan role member: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role member rows: %w", err)
	}

	return ids, nil
}
