package services

import (
	"errors"
	"fmt"
	"maps"
)

// ErrorType classifies a DomainError. Handlers map each type to one HTTP status.
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError is an error with a type, a client-safe message and optional
// details. Two DomainErrors match under errors.Is when their types match.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of e carrying key=value. e is left untouched,
// so it is safe to call on the package-level sentinels.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	maps.Copy(cp.Details, e.Details)
	cp.Details[key] = value
	return &cp
}

// Wrap returns a copy of e with err as its cause
func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

var (
	ErrUserNotFound       = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrRoleNotFound       = NewDomainError(ErrorTypeNotFound, "role not found", nil)
	ErrPermissionNotFound = NewDomainError(ErrorTypeNotFound, "permission not found", nil)
	ErrServiceNotFound    = NewDomainError(ErrorTypeNotFound, "upstream service not found", nil)
	ErrAuditEntryNotFound = NewDomainError(ErrorTypeNotFound, "audit entry not found", nil)

	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidPermissionID = NewDomainError(ErrorTypeValidation, "invalid permission identifier", nil)
	ErrInvalidRoleID       = NewDomainError(ErrorTypeValidation, "invalid role identifier", nil)
	ErrInvalidAuditFilter  = NewDomainError(ErrorTypeValidation, "invalid audit filter", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
	ErrNoSession    = NewDomainError(ErrorTypeUnauthorized, "no active session", nil)

	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrInactiveUser            = NewDomainError(ErrorTypeForbidden, "user account is inactive", nil)

	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)

	ErrConcurrentUpdate = NewDomainError(ErrorTypeConflict, "concurrent update detected", nil)

	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
	ErrBroadcastFailed   = NewDomainError(ErrorTypeInternal, "invalidation broadcast failed", nil)

	ErrUpstreamUnavailable = NewDomainError(ErrorTypeExternal, "upstream service unavailable", nil)
	ErrUpstreamTimeout     = NewDomainError(ErrorTypeExternal, "upstream service timeout", nil)
)

// AsDomainError returns the first DomainError in err's chain
func AsDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

func hasType(err error, t ErrorType) bool {
	domainErr, ok := AsDomainError(err)
	return ok && domainErr.Type == t
}

func IsNotFoundError(err error) bool     { return hasType(err, ErrorTypeNotFound) }
func IsValidationError(err error) bool   { return hasType(err, ErrorTypeValidation) }
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }
func IsForbiddenError(err error) bool    { return hasType(err, ErrorTypeForbidden) }
func IsRateLimitError(err error) bool    { return hasType(err, ErrorTypeRateLimit) }
func IsConflictError(err error) bool     { return hasType(err, ErrorTypeConflict) }
func IsInternalError(err error) bool     { return hasType(err, ErrorTypeInternal) }
func IsExternalError(err error) bool     { return hasType(err, ErrorTypeExternal) }

// GetErrorType returns the type of the first DomainError in err's chain, or ""
func GetErrorType(err error) ErrorType {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details of the first DomainError in err's chain
func GetErrorDetails(err error) map[string]interface{} {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Details
	}
	return nil
}
