package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/helpdesk/ticket-gateway/middleware"
	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/services/session"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// decodeJSON decodes the request body into v and validates it
func decodeJSON(r *http.Request, w http.ResponseWriter, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid JSON body")
	}
	return utils.ValidateStruct(v)
}

// requestMeta collects the audit fields of a request
func requestMeta(r *http.Request) audit.RequestMeta {
	return audit.RequestMeta{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

// requireSession returns the caller's session or writes a 401
func requireSession(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*session.Session, bool) {
	s := middleware.GetSessionFromContext(r.Context())
	if s == nil || !s.AuthState().Authenticated() {
		HandleServiceError(w, services.ErrNoSession, logger)
		return nil, false
	}
	return s, true
}

// int64Param parses a positive integer URL parameter
func int64Param(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
