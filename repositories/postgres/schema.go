package postgres

import (
	"context"
	"fmt"

	"github.com/helpdesk/ticket-gateway/models"
	"go.uber.org/zap"
)

// coreSchema mirrors the tables owned by the user service. Everything is
// created only when missing so a gateway can bootstrap an empty database
// for local runs and tests.
const coreSchema = `
	CREATE TABLE IF NOT EXISTS departments (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		description TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		username VARCHAR(100) NOT NULL UNIQUE,
		hashed_password VARCHAR(255) NOT NULL,
		full_name VARCHAR(255),
		is_active BOOLEAN NOT NULL DEFAULT true,
		department_id INTEGER REFERENCES departments(id) ON DELETE SET NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS roles (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		description TEXT,
		permissions JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_role (
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, role_id)
	);

	CREATE TABLE IF NOT EXISTS permissions (
		id VARCHAR(100) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		category VARCHAR(100) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_department_id ON users(department_id);
	CREATE INDEX IF NOT EXISTS idx_user_role_role_id ON user_role(role_id);
	CREATE INDEX IF NOT EXISTS idx_permissions_category ON permissions(category);
`

// auditSchema creates audit_logs. userRef is appended to the user_id
// column: a REFERENCES clause on the main database, empty on a separate
// audit database.
func auditSchema(userRef string) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		user_id INTEGER %s,
		action VARCHAR(100) NOT NULL,
		resource_type VARCHAR(100) NOT NULL,
		resource_id VARCHAR(255),
		details JSONB,
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(255),
		status_code INTEGER,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_request_id ON audit_logs(request_id);
`, userRef)
}

const seedPermissionQuery = `
	INSERT INTO permissions (id, name, description, category)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING
`

// InitSchema creates the core tables and, when withAudit is set, the
// audit_logs table linked to users
func (db *DB) InitSchema(ctx context.Context, withAudit bool) error {
	schema := coreSchema
	if withAudit {
		schema += auditSchema("REFERENCES users(id) ON DELETE SET NULL")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	db.logger.Info("database schema initialized", zap.Bool("audit_logs", withAudit))
	return nil
}

// InitAuditSchema creates audit_logs without a foreign key, for a database
// that holds only the audit trail
func (db *DB) InitAuditSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, auditSchema("")); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	db.logger.Info("audit schema initialized")
	return nil
}

// SeedPermissions inserts missing catalog entries in one transaction.
// Existing rows are left untouched.
func (db *DB) SeedPermissions(ctx context.Context, perms []models.Permission) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, seedPermissionQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare seed statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range perms {
		res, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Description, p.Category)
		if err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission seed: %w", err)
	}
	db.logger.Info("permission catalog seeded",
		zap.Int("catalog", len(perms)),
		zap.Int("inserted", inserted))
	return nil
}
