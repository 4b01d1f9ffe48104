package permission

import (
	"sync"

	"github.com/helpdesk/ticket-gateway/models"
	"go.uber.org/zap"
)

// AuthState is the authentication snapshot the resolver evaluates against
type AuthState struct {
	Actor *models.User
	Token string
}

// Authenticated reports whether both an actor and a token are present
func (s AuthState) Authenticated() bool {
	return s.Actor != nil && s.Token != ""
}

// StateProvider exposes the current authentication state
type StateProvider interface {
	AuthState() AuthState
}

// StateFunc adapts a function to StateProvider
type StateFunc func() AuthState

// AuthState implements StateProvider
func (f StateFunc) AuthState() AuthState {
	return f()
}

// Resolver computes the effective permission set of the current actor and
// memoizes it in the session's cache.
type Resolver struct {
	state  StateProvider
	cache  *Cache
	logger *zap.Logger

	// serializes recomputation so concurrent misses resolve once
	mu sync.Mutex
}

// NewResolver creates a resolver over state, storing results in cache
func NewResolver(state StateProvider, cache *Cache, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		state:  state,
		cache:  cache,
		logger: logger,
	}
}

// Resolve returns the actor's permission set. Without an authenticated
// actor it returns the empty set and leaves the cache untouched.
func (r *Resolver) Resolve() *Set {
	st := r.state.AuthState()
	if !st.Authenticated() {
		return NewSet()
	}

	if set, ok := r.cache.Get(); ok {
		return set
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have filled the cache while we waited
	if set, ok := r.cache.Get(); ok {
		return set
	}

	set := r.compute(st.Actor)
	r.cache.Put(set)
	return set
}

// ResetCache forces the next Resolve to recompute
func (r *Resolver) ResetCache() {
	r.cache.Invalidate()
}

// Cache returns the backing cache
func (r *Resolver) Cache() *Cache {
	return r.cache
}

func (r *Resolver) compute(actor *models.User) *Set {
	var ids []string
	skipped := 0
	for _, role := range actor.Roles {
		ids = append(ids, role.Permissions.IDs()...)
		skipped += role.Permissions.Invalid()
	}

	set := NewSet(ids...)
	if skipped > 0 {
		r.logger.Debug("skipped malformed permission entries",
			zap.Int64("user_id", actor.ID),
			zap.Int("skipped", skipped),
		)
	}
	r.logger.Debug("resolved permissions",
		zap.Int64("user_id", actor.ID),
		zap.Int("roles", len(actor.Roles)),
		zap.Int("permissions", set.Len()),
	)
	return set
}
