package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/repositories"
	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/services/permission"
	"go.uber.org/zap"
)

// ActorRepository loads the user a token was issued for, roles included
type ActorRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Manager maps bearer tokens to sessions
type Manager struct {
	store       *Store
	actors      ActorRepository
	broadcaster Broadcaster
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewManager creates a session manager
func NewManager(store *Store, actors ActorRepository, broadcaster Broadcaster, cacheTTL time.Duration, logger *zap.Logger) *Manager {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if cacheTTL <= 0 {
		cacheTTL = permission.DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:       store,
		actors:      actors,
		broadcaster: broadcaster,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// Resolve returns the session for token, loading the actor on first sight
func (m *Manager) Resolve(ctx context.Context, token string, userID int64) (*Session, error) {
	key := TokenKey(token)
	if s, ok := m.store.Get(key); ok && s.UserID() == userID {
		return s, nil
	}

	s, err := m.build(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	return m.store.Add(key, s), nil
}

// Login always reloads the actor and replaces any session held for token
func (m *Manager) Login(ctx context.Context, token string, userID int64) (*Session, error) {
	s, err := m.build(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	m.store.Put(TokenKey(token), s)

	m.logger.Info("session started",
		zap.String("session_id", s.ID.String()),
		zap.Int64("user_id", userID),
	)
	return s, nil
}

// Logout ends the session held for token. It reports whether one existed.
func (m *Manager) Logout(token string) bool {
	s, ok := m.store.Remove(TokenKey(token))
	if !ok {
		return false
	}
	userID := s.UserID()
	s.Logout()

	m.logger.Info("session ended",
		zap.String("session_id", s.ID.String()),
		zap.Int64("user_id", userID),
	)
	return true
}

// InvalidateUsers drops the sessions of userIDs here and on every other
// instance. Local invalidation happens even when the broadcast fails.
func (m *Manager) InvalidateUsers(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	m.invalidateLocal(userIDs)

	if err := m.broadcaster.Publish(ctx, userIDs); err != nil {
		m.logger.Error("failed to broadcast invalidation",
			zap.Int64s("user_ids", userIDs),
			zap.Error(err),
		)
		return services.ErrBroadcastFailed.Wrap(err)
	}
	return nil
}

// Listen applies invalidations published by other instances until ctx is done
func (m *Manager) Listen(ctx context.Context) error {
	return m.broadcaster.Subscribe(ctx, func(userIDs []int64) {
		m.logger.Debug("applying remote invalidation", zap.Int64s("user_ids", userIDs))
		m.invalidateLocal(userIDs)
	})
}

// Store returns the backing session store
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) invalidateLocal(userIDs []int64) {
	removed := 0
	for _, id := range userIDs {
		removed += m.store.InvalidateUser(id)
	}
	m.logger.Debug("invalidated sessions",
		zap.Int64s("user_ids", userIDs),
		zap.Int("sessions", removed),
	)
}

func (m *Manager) build(ctx context.Context, token string, userID int64) (*Session, error) {
	actor, err := m.actors.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if !actor.IsActive {
		return nil, services.ErrInactiveUser
	}

	s := New(m.cacheTTL, m.logger)
	s.Login(actor, token)
	return s, nil
}
