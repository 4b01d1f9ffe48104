package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/helpdesk/ticket-gateway/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// recordingChecker records which predicate the gate consulted
type recordingChecker struct {
	grants map[string]bool
	calls  []string
}

func (c *recordingChecker) HasPermission(id string) bool {
	c.calls = append(c.calls, "one")
	return c.grants[id]
}

func (c *recordingChecker) HasAnyPermission(ids []string) bool {
	c.calls = append(c.calls, "any")
	for _, id := range ids {
		if c.grants[id] {
			return true
		}
	}
	return false
}

func (c *recordingChecker) HasAllPermissions(ids []string) bool {
	c.calls = append(c.calls, "all")
	for _, id := range ids {
		if !c.grants[id] {
			return false
		}
	}
	return true
}

func TestAllowed_Precedence(t *testing.T) {
	grants := map[string]bool{"ticket:view": true}

	tests := []struct {
		name     string
		req      Requirement
		want     bool
		wantCall []string
	}{
		{
			name:     "single id wins over list",
			req:      Requirement{PermissionID: "user:delete", Permissions: []string{"ticket:view"}},
			want:     false,
			wantCall: []string{"one"},
		},
		{
			name:     "list with require any",
			req:      Requirement{Permissions: []string{"user:delete", "ticket:view"}},
			want:     true,
			wantCall: []string{"any"},
		},
		{
			name:     "list with require all",
			req:      Requirement{Permissions: []string{"user:delete", "ticket:view"}, RequireAll: true},
			want:     false,
			wantCall: []string{"all"},
		},
		{
			name:     "no requirement is public",
			req:      Requirement{RequireAll: true},
			want:     true,
			wantCall: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &recordingChecker{grants: grants}
			assert.Equal(t, tt.want, Allowed(c, tt.req))
			assert.Equal(t, tt.wantCall, c.calls)
		})
	}
}

func TestGate_Decide(t *testing.T) {
	c := &recordingChecker{grants: map[string]bool{"ticket:view": true}}

	t.Run("granted", func(t *testing.T) {
		d := Gate{Requirement: Requirement{PermissionID: "ticket:view"}}.Decide(c)
		assert.Equal(t, Granted, d.Outcome)
		assert.Empty(t, d.RedirectTo)
	})

	t.Run("fallback when provided", func(t *testing.T) {
		d := Gate{Requirement: Requirement{PermissionID: "user:view"}, HasFallback: true, RedirectTo: "/login"}.Decide(c)
		assert.Equal(t, Fallback, d.Outcome)
	})

	t.Run("default redirect", func(t *testing.T) {
		d := Gate{Requirement: Requirement{PermissionID: "user:view"}}.Decide(c)
		assert.Equal(t, Redirect, d.Outcome)
		assert.Equal(t, DefaultRedirect, d.RedirectTo)
		assert.Equal(t, "redirect", d.Outcome.String())
	})

	t.Run("custom redirect", func(t *testing.T) {
		d := Gate{Requirement: Requirement{Permissions: []string{"user:view"}}, RedirectTo: "/home"}.Decide(c)
		assert.Equal(t, "/home", d.RedirectTo)
	})
}

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) List(ctx context.Context) ([]*models.Permission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Permission), args.Error(1)
}

func TestCatalog_List(t *testing.T) {
	t.Run("no store serves defaults", func(t *testing.T) {
		c := NewCatalog(nil, zap.NewNop())
		assert.Len(t, c.List(context.Background()), len(defaultPermissions))
	})

	t.Run("stored definitions", func(t *testing.T) {
		store := new(MockStore)
		store.On("List", mock.Anything).Return([]*models.Permission{
			{ID: "ticket:view", Name: "View", Category: CategoryTicket},
			nil,
		}, nil)

		c := NewCatalog(store, zap.NewNop())
		list := c.List(context.Background())

		assert.Len(t, list, 1)
		assert.Equal(t, "ticket:view", list[0].ID)
		store.AssertExpectations(t)
	})

	t.Run("store error falls back", func(t *testing.T) {
		store := new(MockStore)
		store.On("List", mock.Anything).Return(nil, errors.New("connection refused"))

		c := NewCatalog(store, zap.NewNop())
		assert.Len(t, c.List(context.Background()), len(defaultPermissions))
	})

	t.Run("empty store falls back", func(t *testing.T) {
		store := new(MockStore)
		store.On("List", mock.Anything).Return([]*models.Permission{}, nil)

		c := NewCatalog(store, zap.NewNop())
		assert.Len(t, c.List(context.Background()), len(defaultPermissions))
	})
}

func TestCatalog_GetAndGroup(t *testing.T) {
	c := NewCatalog(nil, zap.NewNop())

	p, ok := c.Get(context.Background(), "ticket:change-status")
	assert.True(t, ok)
	assert.Equal(t, "Change Ticket Status", p.Name)

	_, ok = c.Get(context.Background(), "ticket:teleport")
	assert.False(t, ok)

	groups := c.Grouped(context.Background())
	assert.Len(t, groups, 10)
	assert.Equal(t, CategoryTicket, groups[0].Category)
	assert.Len(t, groups[0].Permissions, 8)
	assert.Equal(t, CategoryProject, groups[len(groups)-1].Category)
}

func TestDefaultPermissions_WellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for _, p := range DefaultPermissions() {
		_, _, ok := models.ParsePermissionID(p.ID)
		assert.True(t, ok, "malformed id %q", p.ID)
		assert.False(t, seen[p.ID], "duplicate id %q", p.ID)
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Category)
		seen[p.ID] = true
	}

	got, ok := Lookup("analytics:advanced")
	assert.True(t, ok)
	assert.Equal(t, CategoryAnalytics, got.Category)
}
