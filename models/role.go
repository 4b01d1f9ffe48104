package models

import (
	"strings"
	"time"
)

// Role names with elevated meaning. Compared case-insensitively.
const (
	RoleNameAdmin         = "admin"
	RoleNameAdministrator = "administrator"
	RoleNameManager       = "manager"
)

// Role is a named bundle of permissions assigned to users
type Role struct {
	ID          int64          `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Description string         `json:"description,omitempty" db:"description"`
	Permissions PermissionRefs `json:"permissions" db:"permissions"`
	CreatedAt   time.Time      `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the Role model
func (Role) TableName() string {
	return "roles"
}

// IsAdmin reports whether the role grants unconditional access
func (r Role) IsAdmin() bool {
	name := strings.ToLower(r.Name)
	return name == RoleNameAdmin || name == RoleNameAdministrator
}

// IsManager reports whether the role is the manager role
func (r Role) IsManager() bool {
	return strings.ToLower(r.Name) == RoleNameManager
}
