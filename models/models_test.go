package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Permission tests
func TestParsePermissionID(t *testing.T) {
	tests := []struct {
		name         string
		id           string
		wantResource string
		wantAction   string
		wantOK       bool
	}{
		{"simple", "ticket:view", "ticket", "view", true},
		{"hyphenated action", "ticket:change-status", "ticket", "change-status", true},
		{"extra colon stays in action", "a:b:c", "a", "b:c", true},
		{"no colon", "ticket", "", "", false},
		{"empty resource", ":view", "", "", false},
		{"empty action", "ticket:", "", "", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resource, action, ok := ParsePermissionID(tt.id)
			assert.Equal(t, tt.wantResource, resource)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestPermission_Resource(t *testing.T) {
	assert.Equal(t, "analytics", Permission{ID: "analytics:advanced"}.Resource())
	assert.Equal(t, "", Permission{ID: "broken"}.Resource())
}

func TestPermissionRef_UnmarshalJSON(t *testing.T) {
	var refs PermissionRefs
	input := `[
		"ticket:view",
		{"id": "ticket:create", "name": "Create Tickets", "category": "Ticket"},
		42,
		{"name": "no id"},
		{"id": 7},
		"",
		null,
		["nested"],
		true
	]`

	require.NoError(t, json.Unmarshal([]byte(input), &refs))
	require.Len(t, refs, 9)

	assert.Equal(t, PermissionRefID, refs[0].Kind)
	assert.Equal(t, "ticket:view", refs[0].ID)

	assert.Equal(t, PermissionRefObject, refs[1].Kind)
	assert.Equal(t, "ticket:create", refs[1].ID)
	assert.Equal(t, "Create Tickets", refs[1].Name)
	assert.Equal(t, "Ticket", refs[1].Category)

	for i := 2; i < len(refs); i++ {
		_, ok := refs[i].Identifier()
		assert.False(t, ok, "entry %d should be invalid", i)
	}

	assert.Equal(t, []string{"ticket:view", "ticket:create"}, refs.IDs())
	assert.Equal(t, 7, refs.Invalid())
}

func TestPermissionRef_MarshalJSON(t *testing.T) {
	refs := PermissionRefs{
		RefID("ticket:view"),
		RefObject(Permission{ID: "report:view", Name: "View Reports"}),
		{},
	}

	data, err := json.Marshal(refs)
	require.NoError(t, err)
	assert.JSONEq(t, `["ticket:view", {"id": "report:view", "name": "View Reports"}, null]`, string(data))
}

func TestRefConstructors_EmptyIDIsInvalid(t *testing.T) {
	_, ok := RefID("").Identifier()
	assert.False(t, ok)

	_, ok = RefObject(Permission{Name: "nameless"}).Identifier()
	assert.False(t, ok)
}

func TestPermissionRefs_Scan(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		var refs PermissionRefs
		require.NoError(t, refs.Scan([]byte(`["ticket:view", {"id": "ticket:assign"}]`)))
		assert.Equal(t, []string{"ticket:view", "ticket:assign"}, refs.IDs())
	})

	t.Run("string", func(t *testing.T) {
		var refs PermissionRefs
		require.NoError(t, refs.Scan(`["user:view"]`))
		assert.Equal(t, []string{"user:view"}, refs.IDs())
	})

	t.Run("nil", func(t *testing.T) {
		refs := PermissionRefs{RefID("stale:value")}
		require.NoError(t, refs.Scan(nil))
		assert.Empty(t, refs)
	})

	t.Run("not an array", func(t *testing.T) {
		var refs PermissionRefs
		assert.Error(t, refs.Scan([]byte(`{"id": "ticket:view"}`)))
	})

	t.Run("unsupported type", func(t *testing.T) {
		var refs PermissionRefs
		assert.Error(t, refs.Scan(12))
	})
}

func TestPermissionRefs_Value(t *testing.T) {
	v, err := PermissionRefs(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	v, err = PermissionRefs{RefID("ticket:view")}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `["ticket:view"]`, string(v.([]byte)))
}

// Role tests
func TestRole_IsAdmin(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"admin", true},
		{"Admin", true},
		{"ADMINISTRATOR", true},
		{"administrators", false},
		{"manager", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Role{Name: tt.name}.IsAdmin())
		})
	}
}

func TestRole_IsManager(t *testing.T) {
	assert.True(t, Role{Name: "manager"}.IsManager())
	assert.True(t, Role{Name: "Manager"}.IsManager())
	assert.False(t, Role{Name: "project-manager"}.IsManager())
	assert.False(t, Role{Name: "admin"}.IsManager())
}

func TestRole_TableName(t *testing.T) {
	assert.Equal(t, "roles", Role{}.TableName())
}

// User tests
func TestUser_RoleHelpers(t *testing.T) {
	user := &User{Roles: []Role{{Name: "agent"}, {Name: "Manager"}}}

	assert.False(t, user.HasAdminRole())
	assert.True(t, user.HasManagerRole())
	assert.Equal(t, []string{"agent", "Manager"}, user.RoleNames())

	var nilUser *User
	assert.False(t, nilUser.HasAdminRole())
	assert.False(t, nilUser.HasManagerRole())
	assert.Nil(t, nilUser.RoleNames())
}

func TestUser_DecodesMixedRolePermissions(t *testing.T) {
	payload := `{
		"id": 12,
		"email": "agent@example.com",
		"username": "agent",
		"is_active": true,
		"roles": [{"id": 3, "name": "agent", "permissions": ["ticket:view", {"id": "ticket:comment"}, 5]}]
	}`

	var user User
	require.NoError(t, json.Unmarshal([]byte(payload), &user))

	require.Len(t, user.Roles, 1)
	assert.Equal(t, []string{"ticket:view", "ticket:comment"}, user.Roles[0].Permissions.IDs())
}

func TestUser_TableName(t *testing.T) {
	assert.Equal(t, "users", User{}.TableName())
}

// AuditLog tests
func TestNewAuditLog(t *testing.T) {
	log := NewAuditLog(AuditActionAccessDenied, "permission")

	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.Equal(t, AuditActionAccessDenied, log.Action)
	assert.Equal(t, "permission", log.ResourceType)
	assert.False(t, log.Timestamp.IsZero())
}

func TestAuditLog_BuilderMethods(t *testing.T) {
	log := NewAuditLog(AuditActionRolePermissionsUpdated, "role").
		WithUser(7).
		WithResource("3").
		WithRequest("req-123", "192.168.1.1", "Mozilla/5.0").
		WithStatus(200).
		WithDetails(map[string]interface{}{"permissions": []string{"ticket:view"}})

	assert.Equal(t, int64(7), *log.UserID)
	assert.Equal(t, "3", log.ResourceID)
	assert.Equal(t, "req-123", log.RequestID)
	assert.Equal(t, "192.168.1.1", log.IPAddress)
	assert.Equal(t, "Mozilla/5.0", log.UserAgent)
	assert.Equal(t, 200, *log.StatusCode)
	assert.JSONEq(t, `{"permissions": ["ticket:view"]}`, string(log.Details))
}

func TestAuditLog_TableName(t *testing.T) {
	assert.Equal(t, "audit_logs", AuditLog{}.TableName())
}
