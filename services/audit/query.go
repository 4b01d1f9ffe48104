package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/repositories"
	"github.com/helpdesk/ticket-gateway/services"
)

// Page is one slice of the audit trail
type Page struct {
	Entries []*models.AuditLog `json:"entries"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// Query reads stored entries. Entries still queued are not visible yet.
func (s *Service) Query(ctx context.Context, filter models.AuditFilter) (*Page, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, services.ErrInvalidAuditFilter.WithDetail("reason", "from must be before to")
	}

	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	limit, offset := filter.Page()
	return &Page{Entries: entries, Limit: limit, Offset: offset}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.ErrAuditEntryNotFound.WithDetail("id", id.String())
	}
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return entry, nil
}
