package handlers

import (
	"net/http"

	"github.com/helpdesk/ticket-gateway/services/audit"
	"github.com/helpdesk/ticket-gateway/services/session"
	"github.com/helpdesk/ticket-gateway/utils"
)

// Version is set at build time with -ldflags "-X .../handlers.Version=..."
var Version = "dev"

// SessionStats reports session store usage
type SessionStats interface {
	Stats() session.StoreStats
}

// AuditStats reports audit pipeline counters
type AuditStats interface {
	Stats() audit.Stats
}

// StatusResponse describes the running gateway
type StatusResponse struct {
	Version     string              `json:"version"`
	Environment string              `json:"environment"`
	Services    []string            `json:"services"`
	Sessions    *session.StoreStats `json:"sessions,omitempty"`
	Audit       *audit.Stats        `json:"audit,omitempty"`
}

// StatusHandler handles GET /api/v1/status
type StatusHandler struct {
	environment string
	services    []string
	sessions    SessionStats
	audit       AuditStats
}

// NewStatusHandler creates a new StatusHandler. sessions and audit may be nil.
func NewStatusHandler(environment string, services []string, sessions SessionStats, auditStats AuditStats) *StatusHandler {
	if services == nil {
		services = []string{}
	}
	return &StatusHandler{
		environment: environment,
		services:    services,
		sessions:    sessions,
		audit:       auditStats,
	}
}

// HandleStatus reports version, environment and proxied services
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version:     Version,
		Environment: h.environment,
		Services:    h.services,
	}
	if h.sessions != nil {
		stats := h.sessions.Stats()
		response.Sessions = &stats
	}
	if h.audit != nil {
		stats := h.audit.Stats()
		response.Audit = &stats
	}
	_ = utils.WriteOK(w, response)
}
