package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/helpdesk/ticket-gateway/models"
)

// ErrNotFound is wrapped by repositories when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// TransactionManager begins transactions whose context repositories join
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository loads actors together with their roles
type UserRepository interface {
	// GetByID retrieves a user and all assigned roles
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// ListIDsByRole returns the ids of every user holding the role
	ListIDsByRole(ctx context.Context, roleID int64) ([]int64, error)
}

// RoleRepository handles role data operations
type RoleRepository interface {
	// GetByID retrieves a role by ID
	GetByID(ctx context.Context, id int64) (*models.Role, error)

	// List retrieves all roles ordered by name
	List(ctx context.Context) ([]*models.Role, error)

	// ListByUserID retrieves the roles assigned to a user
	ListByUserID(ctx context.Context, userID int64) ([]models.Role, error)

	// SetPermissions replaces the permission list of a role
	SetPermissions(ctx context.Context, id int64, permissions models.PermissionRefs) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RoleRepository
}

// PermissionRepository reads the permission catalog
type PermissionRepository interface {
	// List retrieves all permissions ordered by category and id
	List(ctx context.Context) ([]*models.Permission, error)

	// GetByID retrieves a permission by identifier
	GetByID(ctx context.Context, id string) (*models.Permission, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// List returns entries matching filter, newest first
	List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) AuditRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users       UserRepository
	Roles       RoleRepository
	Permissions PermissionRepository
	AuditLogs   AuditRepository
}
