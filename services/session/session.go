package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/services/permission"
	"go.uber.org/zap"
)

// Session owns one client's authentication state together with the
// permission cache derived from it
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu        sync.RWMutex
	state     permission.AuthState
	cache     *permission.Cache
	evaluator *permission.Evaluator
}

// New creates an unauthenticated session whose permission cache uses ttl
func New(ttl time.Duration, logger *zap.Logger) *Session {
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		cache:     permission.NewCache(ttl),
	}
	s.evaluator = permission.NewEvaluator(s, s.cache, logger)
	return s
}

// AuthState implements permission.StateProvider
func (s *Session) AuthState() permission.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Login replaces the authenticated actor and drops cached permissions
func (s *Session) Login(actor *models.User, token string) {
	s.mu.Lock()
	s.state = permission.AuthState{Actor: actor, Token: token}
	s.mu.Unlock()

	s.cache.Invalidate()
}

// Logout clears the authentication state and drops cached permissions
func (s *Session) Logout() {
	s.mu.Lock()
	s.state = permission.AuthState{}
	s.mu.Unlock()

	s.cache.Invalidate()
}

// Evaluator returns the permission evaluator bound to this session
func (s *Session) Evaluator() *permission.Evaluator {
	return s.evaluator
}

// Cache returns the session's permission cache
func (s *Session) Cache() *permission.Cache {
	return s.cache
}

// Actor returns the authenticated user or nil
func (s *Session) Actor() *models.User {
	return s.AuthState().Actor
}

// UserID returns the authenticated user's id, or 0 when logged out
func (s *Session) UserID() int64 {
	if actor := s.Actor(); actor != nil {
		return actor.ID
	}
	return 0
}
