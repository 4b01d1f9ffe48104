package permission

import (
	"strings"

	"go.uber.org/zap"
)

// ManagerPrefixes are the permission namespaces implicitly granted to managers
var ManagerPrefixes = []string{"analytics:", "ticket:"}

// Evaluator answers permission predicates for the current actor. Elevated
// roles are checked before the resolved set is consulted.
type Evaluator struct {
	state    StateProvider
	resolver *Resolver
}

// NewEvaluator creates an evaluator over state backed by cache
func NewEvaluator(state StateProvider, cache *Cache, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		state:    state,
		resolver: NewResolver(state, cache, logger),
	}
}

// HasPermission reports whether the actor holds id
func (e *Evaluator) HasPermission(id string) bool {
	if e.IsAdmin() {
		return true
	}
	if e.IsManager() && managerGrants(id) {
		return true
	}
	return e.resolver.Resolve().Contains(id)
}

// HasAnyPermission reports whether the actor holds at least one of ids
func (e *Evaluator) HasAnyPermission(ids []string) bool {
	if e.IsAdmin() {
		return true
	}
	if e.IsManager() {
		for _, id := range ids {
			if managerGrants(id) {
				return true
			}
		}
	}
	return e.resolver.Resolve().ContainsAny(ids)
}

// HasAllPermissions reports whether the actor holds every one of ids.
// An empty list is satisfied by anyone.
func (e *Evaluator) HasAllPermissions(ids []string) bool {
	if e.IsAdmin() {
		return true
	}
	if e.IsManager() && len(ids) > 0 {
		all := true
		for _, id := range ids {
			if !managerGrants(id) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return e.resolver.Resolve().ContainsAll(ids)
}

// IsAdmin reports whether any of the actor's roles is admin or administrator
func (e *Evaluator) IsAdmin() bool {
	st := e.state.AuthState()
	return st.Authenticated() && st.Actor.HasAdminRole()
}

// IsManager reports whether any of the actor's roles is manager
func (e *Evaluator) IsManager() bool {
	st := e.state.AuthState()
	return st.Authenticated() && st.Actor.HasManagerRole()
}

// CanAccessFeature checks a feature's permission list with all/any semantics
func (e *Evaluator) CanAccessFeature(ids []string, requireAll bool) bool {
	if requireAll {
		return e.HasAllPermissions(ids)
	}
	return e.HasAnyPermission(ids)
}

// Permissions returns the resolved permission set
func (e *Evaluator) Permissions() *Set {
	return e.resolver.Resolve()
}

// ResetCache forces recomputation on the next query
func (e *Evaluator) ResetCache() {
	e.resolver.ResetCache()
}

func managerGrants(id string) bool {
	for _, prefix := range ManagerPrefixes {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}
