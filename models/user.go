package models

import (
	"time"
)

// User is the authenticated actor whose requests are evaluated
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Username     string    `json:"username" db:"username"`
	FullName     string    `json:"full_name,omitempty" db:"full_name"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	DepartmentID *int64    `json:"department_id,omitempty" db:"department_id"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// HasAdminRole returns true if any assigned role is an admin role
func (u *User) HasAdminRole() bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if role.IsAdmin() {
			return true
		}
	}
	return false
}

// HasManagerRole returns true if any assigned role is the manager role
func (u *User) HasManagerRole() bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if role.IsManager() {
			return true
		}
	}
	return false
}

// RoleNames lists the names of the assigned roles
func (u *User) RoleNames() []string {
	if u == nil {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		names = append(names, role.Name)
	}
	return names
}
