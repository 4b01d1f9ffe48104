package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/services"
	"github.com/helpdesk/ticket-gateway/services/permission"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// PermissionCatalog serves permission definitions
type PermissionCatalog interface {
	Get(ctx context.Context, id string) (models.Permission, bool)
	Grouped(ctx context.Context) []permission.CategoryGroup
}

// PermissionHandler serves the permission catalog
type PermissionHandler struct {
	catalog PermissionCatalog
	logger  *zap.Logger
}

// NewPermissionHandler creates a new PermissionHandler
func NewPermissionHandler(catalog PermissionCatalog, logger *zap.Logger) *PermissionHandler {
	return &PermissionHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/permissions
func (h *PermissionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]interface{}{
		"categories": h.catalog.Grouped(r.Context()),
	})
}

// HandleGet handles GET /api/v1/permissions/{id}
func (h *PermissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, ok := models.ParsePermissionID(id); !ok {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, "invalid permission identifier", nil).
			WithDetail("permission_id", id), h.logger)
		return
	}

	p, ok := h.catalog.Get(r.Context(), id)
	if !ok {
		HandleServiceError(w, services.ErrPermissionNotFound, h.logger)
		return
	}
	_ = utils.WriteOK(w, p)
}
