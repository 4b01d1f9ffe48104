package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/helpdesk/ticket-gateway/config"
	"github.com/helpdesk/ticket-gateway/middleware"
	"github.com/helpdesk/ticket-gateway/utils"
	"go.uber.org/zap"
)

// route is one upstream service behind /api/{service}/
type route struct {
	name   string
	target *url.URL
	proxy  *httputil.ReverseProxy
}

// Proxy forwards /api/{service}/* to the configured backend services
type Proxy struct {
	routes     map[string]*route
	prefix     string
	cookieName string
	client     *http.Client
	logger     *zap.Logger
}

// New builds a proxy for every service in cfg
func New(cfg config.UpstreamConfig, cookieName string, logger *zap.Logger) (*Proxy, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cookieName == "" {
		cookieName = middleware.DefaultCookieName
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	p := &Proxy{
		routes:     make(map[string]*route, len(cfg.Services)),
		prefix:     "/" + strings.Trim(cfg.PathPrefix, "/"),
		cookieName: cookieName,
		client:     &http.Client{Transport: transport, Timeout: 5 * time.Second},
		logger:     logger,
	}
	if p.prefix == "/" {
		p.prefix = ""
	}

	for name, raw := range cfg.Services {
		target, err := url.Parse(raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid upstream URL for %s: %q", name, raw)
		}
		rt := &route{name: name, target: target}
		rt.proxy = &httputil.ReverseProxy{
			Rewrite:      p.rewrite(rt),
			Transport:    transport,
			ErrorHandler: p.errorHandler(rt),
		}
		p.routes[name] = rt
	}

	return p, nil
}

// ServeHTTP proxies the request to the service named by the {service} URL parameter
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "service")
	rt, ok := p.routes[name]
	if !ok {
		_ = utils.WriteNotFound(w, fmt.Sprintf("Unknown service: %s", name))
		return
	}

	p.logger.Debug("proxying request",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("service", name),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))

	rt.proxy.ServeHTTP(w, r)
}

// Has reports whether name is a configured service
func (p *Proxy) Has(name string) bool {
	_, ok := p.routes[name]
	return ok
}

// Services returns the configured service names in sorted order
func (p *Proxy) Services() []string {
	names := make([]string, 0, len(p.routes))
	for name := range p.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UpstreamPath maps the path remainder after /api/<service>/ to the upstream path
func (p *Proxy) UpstreamPath(base *url.URL, rest string) string {
	path := strings.TrimRight(base.Path, "/") + p.prefix
	rest = strings.TrimLeft(rest, "/")
	if rest == "" {
		if path == "" {
			return "/"
		}
		return path
	}
	return path + "/" + rest
}

// CheckHealth probes GET <base>/health on every upstream concurrently.
// Every service has an entry; healthy ones map to nil.
func (p *Proxy) CheckHealth(ctx context.Context) map[string]error {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]error, len(p.routes))
	)

	for name, rt := range p.routes {
		wg.Add(1)
		go func(name string, rt *route) {
			defer wg.Done()
			err := p.probe(ctx, rt)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name, rt)
	}
	wg.Wait()

	return results
}

func (p *Proxy) probe(ctx context.Context, rt *route) error {
	healthURL := strings.TrimRight(rt.target.String(), "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status code %d", resp.StatusCode)
	}
	return nil
}

func (p *Proxy) rewrite(rt *route) func(*httputil.ProxyRequest) {
	return func(pr *httputil.ProxyRequest) {
		pr.Out.URL.Scheme = rt.target.Scheme
		pr.Out.URL.Host = rt.target.Host
		pr.Out.URL.Path = p.UpstreamPath(rt.target, chi.URLParam(pr.In, "*"))
		pr.Out.URL.RawPath = ""
		pr.Out.Host = rt.target.Host
		pr.SetXForwarded()

		if pr.Out.Header.Get("Authorization") == "" {
			if cookie, err := pr.In.Cookie(p.cookieName); err == nil && cookie.Value != "" {
				pr.Out.Header.Set("Authorization", "Bearer "+cookie.Value)
			}
		}
		if requestID := middleware.GetRequestIDFromContext(pr.In.Context()); requestID != "" {
			pr.Out.Header.Set("X-Request-ID", requestID)
		}
	}
}

func (p *Proxy) errorHandler(rt *route) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		p.logger.Error("upstream request failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("service", rt.name),
			zap.String("target", rt.target.String()),
			zap.Error(err))
		_ = utils.WriteBadGateway(w)
	}
}
