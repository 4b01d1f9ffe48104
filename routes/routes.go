package routes

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/helpdesk/ticket-gateway/app"
	"github.com/helpdesk/ticket-gateway/handlers"
	"github.com/helpdesk/ticket-gateway/middleware"
	"github.com/helpdesk/ticket-gateway/services/permission"
	"github.com/helpdesk/ticket-gateway/utils"
)

// serviceGates are proxied services the gateway checks before forwarding.
// All other services enforce their own permissions.
var serviceGates = map[string]permission.Requirement{
	"analytics": {PermissionID: "analytics:view"},
	"reports":   {Permissions: []string{"report:view", "report:create", "report:export"}},
}

// publicUpstreamPaths are the path prefixes, per proxied service, that are
// forwarded without a token. Everything else behind /api/{service} needs one.
var publicUpstreamPaths = map[string][]string{
	"users": {"auth"},
}

// SetupRoutes configures all application routes and middleware.
// deps must carry AuthMiddleware and AuthzMiddleware.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	logger := deps.Logger

	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Set before any Route call so subrouters inherit it
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	// Health check endpoints
	health := newHealthHandler(deps)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	var services []string
	if deps.Proxy != nil {
		services = deps.Proxy.Services()
	}
	var sessionStats handlers.SessionStats
	if deps.Sessions != nil {
		sessionStats = deps.Sessions.Store()
	}
	var sessionAuditor handlers.SessionAuditor
	var auditStats handlers.AuditStats
	if deps.Audit != nil {
		sessionAuditor = deps.Audit
		auditStats = deps.Audit
	}
	status := handlers.NewStatusHandler(cfg.Environment, services, sessionStats, auditStats)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, sessionAuditor, logger)
	me := handlers.NewMeHandler(logger)
	perms := handlers.NewPermissionHandler(deps.Catalog, logger)
	roles := handlers.NewRoleHandler(deps.RoleService, logger)

	authn := deps.AuthMiddleware
	authz := deps.AuthzMiddleware

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(middleware.RateLimitByIP(cfg.RateLimit.Requests, cfg.RateLimit.Window, logger))
		}

		r.Route("/v1", func(r chi.Router) {
			// Public routes
			r.Get("/status", status.HandleStatus)

			// Login builds the session itself from the validated token
			r.With(authn.RequireToken).Post("/session", sessionHandler.HandleLogin)

			r.Group(func(r chi.Router) {
				r.Use(authn.RequireAuth)

				r.Delete("/session", sessionHandler.HandleLogout)

				r.Get("/me", me.HandleGetMe)
				r.Get("/me/permissions", me.HandleGetPermissions)
				r.Post("/me/permissions/check", me.HandleCheck)

				r.Route("/permissions", func(r chi.Router) {
					r.Use(authz.RequirePermission("role:view"))
					r.Get("/", perms.HandleList)
					r.Get("/{id}", perms.HandleGet)
				})

				r.Route("/roles", func(r chi.Router) {
					r.With(authz.RequirePermission("role:view")).Get("/", roles.HandleList)
					r.With(authz.RequirePermission("role:view")).Get("/{id}", roles.HandleGet)
					r.With(authz.RequirePermission("role:update")).Put("/{id}/permissions", roles.HandleSetPermissions)
				})

				if deps.Audit != nil {
					trail := handlers.NewAuditHandler(deps.Audit, logger)
					r.Route("/audit", func(r chi.Router) {
						r.Use(authz.RequirePermission("system:logs"))
						r.Get("/", trail.HandleList)
						r.Get("/{id}", trail.HandleGet)
					})
				}
			})
		})

		if deps.Proxy != nil {
			upstream := proxyHandler(deps)
			r.Handle("/{service}", upstream)
			r.Handle("/{service}/*", upstream)
		}
	})

	return r
}

func newHealthHandler(deps *app.Dependencies) *handlers.HealthHandler {
	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	var pinger handlers.RedisPinger
	if deps.Redis != nil {
		pinger = deps.Redis
	}
	var upstreams handlers.UpstreamChecker
	if deps.Proxy != nil {
		upstreams = deps.Proxy
	}
	return handlers.NewHealthHandler(db, pinger, upstreams, deps.Logger)
}

// proxyHandler forwards to the upstream named by {service}. Requests need a
// valid token unless they hit a publicUpstreamPaths prefix, and services
// listed in serviceGates are also checked against the gateway side gate.
func proxyHandler(deps *app.Dependencies) http.Handler {
	gated := make(map[string]http.Handler, len(serviceGates))
	for name, req := range serviceGates {
		gate := permission.Gate{Requirement: req, HasFallback: true}
		gated[name] = deps.AuthzMiddleware.Guard(gate, http.HandlerFunc(gateDenied))(deps.Proxy)
	}

	protected := deps.AuthMiddleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := gated[chi.URLParam(r, "service")]; ok {
			h.ServeHTTP(w, r)
			return
		}
		deps.Proxy.ServeHTTP(w, r)
	}))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		service := chi.URLParam(r, "service")
		if !deps.Proxy.Has(service) || isPublicUpstream(service, chi.URLParam(r, "*")) {
			deps.Proxy.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

func isPublicUpstream(service, rest string) bool {
	rest = strings.Trim(rest, "/")
	for _, prefix := range publicUpstreamPaths[service] {
		if rest == prefix || strings.HasPrefix(rest, prefix+"/") {
			return true
		}
	}
	return false
}

// gateDenied runs behind RequireAuth, so the caller is always known
func gateDenied(w http.ResponseWriter, _ *http.Request) {
	_ = utils.WriteForbidden(w, "Insufficient permissions")
}
