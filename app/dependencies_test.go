package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/helpdesk/ticket-gateway/config"
	"github.com/helpdesk/ticket-gateway/services/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	_ "github.com/lib/pq"
)

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization with all components", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		// Skip if database not available
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Users)
		assert.NotNil(t, deps.Roles)
		assert.NotNil(t, deps.Permissions)
		assert.NotNil(t, deps.AuditLogs)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.TokenValidator)
		assert.NotNil(t, deps.Sessions)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.Catalog)
		assert.NotNil(t, deps.RoleService)
		assert.NotNil(t, deps.Proxy)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.AuthzMiddleware)
		assert.Nil(t, deps.Redis)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestDependencies_InitAuth(t *testing.T) {
	t.Run("accepts HS256 secret", func(t *testing.T) {
		deps := &Dependencies{Logger: zaptest.NewLogger(t)}
		require.NoError(t, deps.initAuth(testConfig(t)))
		assert.NotNil(t, deps.TokenValidator)
	})

	t.Run("rejects asymmetric algorithm", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTAlgorithm = "RS256"

		deps := &Dependencies{Logger: zaptest.NewLogger(t)}
		assert.Error(t, deps.initAuth(cfg))
	})
}

func TestDependencies_InitSessions(t *testing.T) {
	t.Run("local invalidation without redis", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		deps := &Dependencies{Config: cfg, Logger: zaptest.NewLogger(t)}

		require.NoError(t, deps.initSessions(ctx, cfg))
		assert.NotNil(t, deps.Sessions)
		assert.Nil(t, deps.Redis)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("redis broadcaster when configured", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Redis.Addr = mr.Addr()
		deps := &Dependencies{Config: cfg, Logger: zaptest.NewLogger(t)}

		require.NoError(t, deps.initSessions(ctx, cfg))
		require.NotNil(t, deps.Redis)

		channel := cfg.Redis.Channel
		require.Eventually(t, func() bool {
			return mr.PubSubNumSub(channel)[channel] == 1
		}, 2*time.Second, 10*time.Millisecond)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("unreachable redis fails", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testConfig(t)
		cfg.Redis.Addr = addr
		deps := &Dependencies{Config: cfg, Logger: zaptest.NewLogger(t)}

		assert.Error(t, deps.initSessions(ctx, cfg))
	})
}

func TestDependencies_InitSessionsReturns(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	deps := &Dependencies{Config: cfg, Logger: zaptest.NewLogger(t)}

	errCh := make(chan error, 1)
	go func() { errCh <- deps.initSessions(ctx, cfg) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("initSessions did not return")
	}
	assert.NoError(t, deps.Close(ctx))
}

func TestDependencies_CleanupWorker(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Permissions.SessionIdleTTL = 20 * time.Millisecond
	cfg.Permissions.SessionCleanupInterval = 5 * time.Millisecond
	deps := &Dependencies{Config: cfg, Logger: zaptest.NewLogger(t)}
	require.NoError(t, deps.initSessions(ctx, cfg))

	store := deps.Sessions.Store()
	store.Put(session.TokenKey("idle"), session.New(time.Minute, nil))
	require.Eventually(t, func() bool { return store.Len() == 0 }, 2*time.Second, 5*time.Millisecond,
		"idle session should be swept while running")

	require.NoError(t, deps.Close(ctx))
	select {
	case <-deps.cleanupDone:
	default:
		t.Fatal("cleanup worker still running after Close")
	}

	store.Put(session.TokenKey("after-close"), session.New(time.Minute, nil))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, store.Stats().Size, "no sweeps after Close")
}

func TestDependencies_InitProxy(t *testing.T) {
	cfg := testConfig(t)
	deps := &Dependencies{Logger: zaptest.NewLogger(t)}

	require.NoError(t, deps.initProxy(cfg))
	assert.Equal(t, []string{"analytics", "tickets"}, deps.Proxy.Services())
}

func TestDependenciesClose(t *testing.T) {
	t.Run("close is idempotent", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		deps := &Dependencies{Config: cfg, Logger: zaptest.NewLogger(t)}
		require.NoError(t, deps.initSessions(ctx, cfg))

		assert.NoError(t, deps.Close(ctx))
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("close on empty dependencies", func(t *testing.T) {
		deps := &Dependencies{Logger: zaptest.NewLogger(t)}
		assert.NoError(t, deps.Close(context.Background()))
	})
}

func TestSessionsUseConfiguredStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Permissions.SessionMaxEntries = 3
	deps := &Dependencies{Config: cfg, Logger: zaptest.NewLogger(t)}
	require.NoError(t, deps.initSessions(ctx, cfg))
	defer deps.Close(ctx)

	stats := deps.Sessions.Store().Stats()
	assert.Equal(t, 3, stats.MaxSize)
	assert.Equal(t, 0, stats.Size)
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "helpdesk",
			Password:        "helpdesk",
			Database:        "helpdesk_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: config.AuthConfig{
			JWTSecret:    "test-secret",
			JWTAlgorithm: "HS256",
			CookieName:   "auth_token",
		},
		Permissions: config.PermissionConfig{
			CacheTTL:               15 * time.Minute,
			SessionMaxEntries:      100,
			SessionIdleTTL:         time.Minute,
			SessionCleanupInterval: time.Minute,
		},
		Redis: config.RedisConfig{
			Channel: "test:invalidations",
		},
		Upstreams: config.UpstreamConfig{
			Services: map[string]string{
				"tickets":   "http://localhost:8001",
				"analytics": "http://localhost:8005",
			},
			Timeout: 5 * time.Second,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	t.Helper()
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return false
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return db.PingContext(ctx) == nil
}
