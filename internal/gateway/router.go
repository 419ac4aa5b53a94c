package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/infra/config"
)

// Route binds a path prefix to one backend.
type Route struct {
	Name        string
	Prefix      string
	Target      *url.URL
	StripPrefix bool
}

// Matches reports whether path falls under the route prefix on a segment
// boundary: /api/auth matches /api/auth and /api/auth/login, not /api/authx.
func (r Route) Matches(path string) bool {
	if r.Prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	return len(path) == len(r.Prefix) || path[len(r.Prefix)] == '/'
}

// Options tunes the outbound transport.
type Options struct {
	UpstreamTimeout time.Duration
	Transport       http.RoundTripper
}

// Router dispatches requests to the first route whose prefix matches. The
// table is fixed once built.
type Router struct {
	routes  []Route
	proxies []http.Handler
	logger  *zap.Logger
}

// NewRouter validates the table and builds one reverse proxy per route.
func NewRouter(table []config.GatewayRoute, opts Options, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := opts.Transport
	if transport == nil {
		transport = newTransport(opts.UpstreamTimeout)
	}

	router := &Router{logger: logger}
	for i, entry := range table {
		route, err := parseRoute(entry)
		if err != nil {
			return nil, fmt.Errorf("gateway route %d (%s): %w", i, entry.Name, err)
		}
		router.routes = append(router.routes, route)
		router.proxies = append(router.proxies, newProxy(route, transport, logger))
	}
	return router, nil
}

func parseRoute(entry config.GatewayRoute) (Route, error) {
	prefix := strings.TrimSpace(entry.Prefix)
	if prefix == "" {
		return Route{}, fmt.Errorf("prefix is empty")
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
	}

	target, err := url.Parse(strings.TrimSpace(entry.Target))
	if err != nil {
		return Route{}, fmt.Errorf("parse target: %w", err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return Route{}, fmt.Errorf("target %q must be an absolute http(s) url", entry.Target)
	}

	name := entry.Name
	if name == "" {
		name = prefix
	}
	return Route{Name: name, Prefix: prefix, Target: target, StripPrefix: entry.StripPrefix}, nil
}

// Routes returns a copy of the table in match order.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Match returns the first route for path.
func (r *Router) Match(path string) (Route, bool) {
	if i := r.index(path); i >= 0 {
		return r.routes[i], true
	}
	return Route{}, false
}

func (r *Router) index(path string) int {
	for i, route := range r.routes {
		if route.Matches(path) {
			return i
		}
	}
	return -1
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	i := r.index(req.URL.Path)
	if i < 0 {
		writeError(w, req, http.StatusNotFound, "NotFound", "route not found")
		return
	}
	r.proxies[i].ServeHTTP(newUpstreamWriter(w), req)
}
