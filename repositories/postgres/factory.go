package postgres

import (
	"context"
	"errors"

	"github.com/helpdesk/ticket-gateway/config"
	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory owns the connection pools behind the repositories.
// Audit logs go to auditDB when a separate audit database is configured.
type RepositoryFactory struct {
	db      *DB
	auditDB *DB
	logger  *zap.Logger
}

func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.AuditDatabase != nil {
		f.auditDB, err = Connect(ctx, *cfg.AuditDatabase, logger.Named("audit"))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return f, nil
}

// Bootstrap prepares the schema. The core tables and catalog are created
// only when initCore is set; the audit table always is when it lives in its
// own database.
func (f *RepositoryFactory) Bootstrap(ctx context.Context, initCore bool, catalog []models.Permission) error {
	if initCore {
		if err := f.db.InitSchema(ctx, f.auditDB == nil); err != nil {
			return err
		}
		if err := f.db.SeedPermissions(ctx, catalog); err != nil {
			return err
		}
	}
	if f.auditDB != nil {
		return f.auditDB.InitAuditSchema(ctx)
	}
	return nil
}

func (f *RepositoryFactory) auditPool() *DB {
	if f.auditDB != nil {
		return f.auditDB
	}
	return f.db
}

// Repositories builds one instance of every repository
func (f *RepositoryFactory) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:       NewUserRepository(f.db, f.logger),
		Roles:       NewRoleRepository(f.db, f.logger),
		Permissions: NewPermissionRepository(f.db, f.logger),
		AuditLogs:   NewAuditRepository(f.auditPool(), f.logger),
	}
}

// TransactionManager begins transactions on the main database. Audit
// writes never join them.
func (f *RepositoryFactory) TransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

func (f *RepositoryFactory) DB() *DB {
	return f.db
}

func (f *RepositoryFactory) Close() error {
	var errs []error
	if f.auditDB != nil {
		errs = append(errs, f.auditDB.Close())
	}
	errs = append(errs, f.db.Close())
	return errors.Join(errs...)
}
