package handlers

import (
	"net/http"

	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

var statusByErrorType = map[services.ErrorType]int{
	services.ErrorTypeNotFound:     http.StatusNotFound,
	services.ErrorTypeValidation:   http.StatusBadRequest,
	services.ErrorTypeUnauthorized: http.StatusUnauthorized,
	services.ErrorTypeForbidden:    http.StatusForbidden,
	services.ErrorTypeRateLimit:    http.StatusTooManyRequests,
	services.ErrorTypeConflict:     http.StatusConflict,
	services.ErrorTypeExternal:     http.StatusBadGateway,
	services.ErrorTypeInternal:     http.StatusInternalServerError,
}

// HandleServiceError writes the response for an error returned by a service.
// Domain errors expose their message and details; anything else, and every
// internal error, is logged and answered with a generic 500.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	domainErr, ok := services.AsDomainError(err)
	status, known := http.StatusInternalServerError, false
	if ok {
		status, known = statusByErrorType[domainErr.Type]
	}

	var writeErr error
	switch {
	case !known:
		logger.Error("unhandled error", zap.Error(err), zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	case status == http.StatusInternalServerError:
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
	default:
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.Int("status", status),
			zap.Error(err))
		writeErr = utils.WriteError(w, status, domainErr.Message, domainErr.Details)
	}
	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError answers a request body that failed decoding or
// validation with a 400 listing the offending fields
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var details map[string]interface{}
	message := err.Error()

	if fields := utils.GetValidationFields(err); fields != nil {
		details = make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
	}

	if err := utils.WriteBadRequest(w, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
