package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionSessionLogin           AuditAction = "session_login"
	AuditActionSessionLogout          AuditAction = "session_logout"
	AuditActionAccessDenied           AuditAction = "access_denied"
	AuditActionRolePermissionsUpdated AuditAction = "role_permissions_updated"
	AuditActionPermissionsInvalidated AuditAction = "permissions_invalidated"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *int64          `json:"user_id,omitempty" db:"user_id"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // permission, role, session
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details" db:"details"`
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	StatusCode   *int            `json:"status_code,omitempty" db:"status_code"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		Timestamp:    time.Now(),
	}
}

// WithUser sets the user ID
func (a *AuditLog) WithUser(userID int64) *AuditLog {
	a.UserID = &userID
	return a
}

// WithResource sets the resource ID
func (a *AuditLog) WithResource(resourceID string) *AuditLog {
	a.ResourceID = resourceID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// WithStatus sets the HTTP status returned to the caller
func (a *AuditLog) WithStatus(statusCode int) *AuditLog {
	a.StatusCode = &statusCode
	return a
}

const (
	DefaultAuditPageSize = 50
	MaxAuditPageSize     = 500
)

// AuditFilter selects audit entries, newest first. Zero fields match
// everything.
type AuditFilter struct {
	UserID    *int64
	Action    AuditAction
	RequestID string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Page returns the clamped limit and offset
func (f AuditFilter) Page() (limit, offset int) {
	limit = f.Limit
	switch {
	case limit <= 0:
		limit = DefaultAuditPageSize
	case limit > MaxAuditPageSize:
		limit = MaxAuditPageSize
	}
	if f.Offset > 0 {
		offset = f.Offset
	}
	return limit, offset
}
