package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// AuditReader reads the stored audit trail
type AuditReader interface {
	Query(ctx context.Context, filter models.AuditFilter) (*audit.Page, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)
}

// AuditQuery holds the query string of GET /api/v1/audit
type AuditQuery struct {
	UserID    int64  `json:"user_id" validate:"omitempty,min=1"`
	Action    string `json:"action" validate:"omitempty,oneof=session_login session_logout access_denied role_permissions_updated permissions_invalidated"`
	RequestID string `json:"request_id" validate:"omitempty,max=255"`
	From      string `json:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To        string `json:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit     int    `json:"limit" validate:"omitempty,min=1,max=500"`
	Offset    int    `json:"offset" validate:"omitempty,min=0"`
}

type AuditHandler struct {
	reader AuditReader
	logger *zap.Logger
}

func NewAuditHandler(reader AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{reader: reader, logger: logger}
}

// HandleList handles GET /api/v1/audit
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseAuditQuery(r.URL.Query())
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	page, err := h.reader.Query(r.Context(), q.filter())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, page)
}

// HandleGet handles GET /api/v1/audit/{id}
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, services.ErrInvalidInput.WithDetail("id", "must be a UUID"), h.logger)
		return
	}

	entry, err := h.reader.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, entry)
}

func parseAuditQuery(values url.Values) (*AuditQuery, error) {
	q := &AuditQuery{
		Action:    values.Get("action"),
		RequestID: values.Get("request_id"),
		From:      values.Get("from"),
		To:        values.Get("to"),
	}

	ints := []struct {
		key string
		set func(int64)
	}{
		{"user_id", func(v int64) { q.UserID = v }},
		{"limit", func(v int64) { q.Limit = int(v) }},
		{"offset", func(v int64) { q.Offset = int(v) }},
	}
	for _, p := range ints {
		raw := values.Get(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &utils.ValidationError{
				Message: "Validation failed",
				Fields:  map[string]string{p.key: p.key + " must be an integer"},
			}
		}
		p.set(v)
	}

	if err := utils.ValidateStruct(q); err != nil {
		return nil, err
	}
	return q, nil
}

// filter converts the validated query. Timestamps were checked by the
// datetime tag, so parse errors cannot occur here.
func (q *AuditQuery) filter() models.AuditFilter {
	f := models.AuditFilter{
		Action:    models.AuditAction(q.Action),
		RequestID: q.RequestID,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.UserID > 0 {
		f.UserID = &q.UserID
	}
	f.From, _ = time.Parse(time.RFC3339, q.From)
	f.To, _ = time.Parse(time.RFC3339, q.To)
	return f
}
