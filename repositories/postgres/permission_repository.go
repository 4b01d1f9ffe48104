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

// PermissionRepository implements the repositories.PermissionRepository interface
type PermissionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB, logger *zap.Logger) repositories.PermissionRepository {
	return &PermissionRepository{
		db:     db,
		logger: logger,
	}
}

// List retrieves all permissions ordered by category and id
func (r *PermissionRepository) List(ctx context.Context) ([]*models.Permission, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), category, created_at, updated_at
		FROM permissions
		ORDER BY category, id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		p := &models.Permission{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission rows: %w", err)
	}

	return perms, nil
}

// GetByID retrieves a permission by identifier
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*models.Permission, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), category, created_at, updated_at
		FROM permissions
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	p := &models.Permission{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission not found: %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return p, nil
}
