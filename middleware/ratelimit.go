package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// RateLimitByIP caps requests per client IP over a sliding window.
// Place after chi's RealIP middleware so proxied clients are keyed correctly.
func RateLimitByIP(requests int, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("path", r.URL.Path))
			_ = utils.WriteTooManyRequests(w, "Too many requests, please try again later", map[string]interface{}{
				"limit":  requests,
				"window": window.String(),
			})
		}),
	)
}
