package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/helpdesk/ticket-gateway/auth"
	"github.com/helpdesk/ticket-gateway/config"
	"github.com/helpdesk/ticket-gateway/middleware"
	"github.com/helpdesk/ticket-gateway/proxy"
	"github.com/helpdesk/ticket-gateway/repositories"
	"github.com/helpdesk/ticket-gateway/repositories/postgres"
	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/services/permission"
	"github.com/helpdesk/ticket-gateway/services/role"
	"github.com/helpdesk/ticket-gateway/services/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long shutdown waits for queued audit events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *redis.Client
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users       repositories.UserRepository
	Roles       repositories.RoleRepository
	Permissions repositories.PermissionRepository
	AuditLogs   repositories.AuditRepository
	TxManager   repositories.TransactionManager

	// Services
	TokenValidator *auth.Validator
	Sessions       *session.Manager
	Audit          *audit.Service
	Catalog        *permission.Catalog
	RoleService    *role.Service
	Proxy          *proxy.Proxy

	// Middleware
	AuthMiddleware  *middleware.AuthMiddleware
	AuthzMiddleware *middleware.AuthzMiddleware

	stopCleanup  chan struct{}
	cleanupDone  chan struct{}
	cancelListen context.CancelFunc
	listenDone   chan struct{}
	closeOnce    sync.Once
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initAudit(); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	if err := deps.initSessions(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize sessions: %w", err)
	}

	deps.initServices()

	if err := deps.initProxy(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize proxy: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects the pools and prepares the schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(ctx, cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := factory.Bootstrap(ctx, cfg.Permissions.InitSchema, permission.DefaultPermissions()); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to bootstrap database: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.DB()
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.Repositories()

	d.Users = repos.Users
	d.Roles = repos.Roles
	d.Permissions = repos.Permissions
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.TransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initAudit() error {
	d.Audit = audit.NewService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:    d.Config.Audit.BufferSize,
		Workers:       d.Config.Audit.Workers,
		InsertTimeout: d.Config.Audit.InsertTimeout,
	})
	return d.Audit.Start()
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	validator, err := auth.NewValidator(auth.Config{
		Secret:    cfg.Auth.JWTSecret,
		Algorithm: cfg.Auth.JWTAlgorithm,
		Issuer:    cfg.Auth.Issuer,
	})
	if err != nil {
		return err
	}
	d.TokenValidator = validator
	return nil
}

// initSessions builds the session store and manager. With Redis configured,
// permission invalidations are fanned out to every gateway instance.
func (d *Dependencies) initSessions(ctx context.Context, cfg *config.Config) error {
	var broadcaster session.Broadcaster = session.NoopBroadcaster{}
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		d.Redis = client
		broadcaster = session.NewRedisBroadcaster(client, cfg.Redis.Channel, d.Logger)
		d.Logger.Info("redis invalidation broadcaster enabled",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("channel", cfg.Redis.Channel))
	} else {
		d.Logger.Warn("redis not configured, permission invalidations stay local to this instance")
	}

	store := session.NewStore(cfg.Permissions.SessionMaxEntries, cfg.Permissions.SessionIdleTTL)
	d.Sessions = session.NewManager(store, d.Users, broadcaster, cfg.Permissions.CacheTTL, d.Logger)

	d.stopCleanup = make(chan struct{})
	d.cleanupDone = make(chan struct{})
	go func() {
		defer close(d.cleanupDone)
		store.RunCleanup(cfg.Permissions.SessionCleanupInterval, d.stopCleanup)
	}()

	listenCtx, cancel := context.WithCancel(context.Background())
	d.cancelListen = cancel
	d.listenDone = make(chan struct{})
	go func() {
		defer close(d.listenDone)
		if err := d.Sessions.Listen(listenCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.Logger.Error("invalidation listener stopped", zap.Error(err))
		}
	}()

	return nil
}

func (d *Dependencies) initServices() {
	d.Catalog = permission.NewCatalog(d.Permissions, d.Logger)
	d.RoleService = role.NewService(d.Roles, d.Users, d.TxManager, d.Catalog, d.Sessions, d.Audit, d.Logger)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.TokenValidator, d.Sessions, d.Config.Auth.CookieName, d.Logger)
	d.AuthzMiddleware = middleware.NewAuthzMiddleware(d.Audit, d.Logger)
}

func (d *Dependencies) initProxy(cfg *config.Config) error {
	p, err := proxy.New(cfg.Upstreams, cfg.Auth.CookieName, d.Logger)
	if err != nil {
		return err
	}
	d.Proxy = p
	d.Logger.Info("upstream proxy initialized", zap.Strings("services", p.Services()))
	return nil
}

// Close gracefully shuts down all dependencies. It is safe to call more than once.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error

	d.closeOnce.Do(func() {
		d.Logger.Info("shutting down dependencies")

		if d.cancelListen != nil {
			d.cancelListen()
			select {
			case <-d.listenDone:
			case <-ctx.Done():
			}
		}
		if d.stopCleanup != nil {
			close(d.stopCleanup)
			select {
			case <-d.cleanupDone:
			case <-ctx.Done():
			}
		}

		// Flush queued audit events before the database goes away
		if d.Audit != nil {
			if err := d.Audit.Stop(auditStopTimeout); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
			}
		}

		if d.Redis != nil {
			if err := d.Redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
			}
		}

		if d.RepoFactory != nil {
			if err := d.RepoFactory.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close database: %w", err))
			} else {
				d.Logger.Info("database connection closed")
			}
		}

		_ = d.Logger.Sync()
	})

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}
