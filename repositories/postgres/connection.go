package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/helpdesk/ticket-gateway/config"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	pingTimeout     = 5 * time.Second
	connectAttempts = 3
	connectBackoff  = 250 * time.Millisecond
)

// DB is a pooled PostgreSQL handle shared by the repositories
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// Connect opens a pool for cfg and waits until the server answers a ping.
// Failed pings are retried a few times with a doubling backoff.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	pool, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := WrapDB(pool, logger.With(zap.String("database", cfg.LogString())))
	if err := db.waitReady(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	db.logger.Info("database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// WrapDB adopts an already opened pool
func WrapDB(pool *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: pool, logger: logger}
}

func (db *DB) waitReady(ctx context.Context) error {
	backoff := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}

		db.logger.Warn("database not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		}
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", connectAttempts, err)
}

func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}
