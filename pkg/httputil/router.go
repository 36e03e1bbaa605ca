package httputil

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"
)

// Middleware defines a function type that represents a middleware. Middleware functions wrap an
// http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions is a function type that represents options to configure a Router.
type RouterOptions func(*Router)

// Router is the main structure for handling HTTP routing and middleware.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	prefix     string
	middleware []Middleware
	group      bool
	mounts     *mountTable
	mu         sync.RWMutex
}

// mount is a handler that owns every path under a prefix, as written by the
// client. The mux would otherwise redirect paths like /api//x or /api/a/../b.
type mount struct {
	prefix   string
	patterns []string
	handler  http.Handler
}

type mountTable struct {
	mu   sync.RWMutex
	list []mount
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		server: &http.Server{}, // Initialize with default server
		mounts: &mountTable{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions returns a RouterOptions function that sets custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// Use adds one or more middleware to the router. At least one middleware must be provided.
// Middleware functions are applied in the order they are added.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	if len(additional) > 0 {
		r.middleware = append(r.middleware, additional...)
	}
}

// Group creates a new sub-router with a specified prefix. Middleware of the root router wraps
// the whole mux, so group routes see it too; middleware added to the group applies to its
// routes only.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var mw []Middleware
	if r.group {
		mw = slices.Clone(r.middleware)
	}
	return &Router{
		mux:        r.mux,
		middleware: mw,
		server:     r.server,
		prefix:     r.prefix + prefix,
		group:      true,
		mounts:     r.mounts,
	}
}

// Handle registers an HTTP handler for a pattern as introduced in
// [Routing Enhancements for Go 1.22](https://go.dev/blog/routing-enhancements).
// The pattern is either `METHOD /path` or `/path` for every method.
// On a route group with a /prefix, `METHOD /pattern` resolves to `METHOD /prefix/pattern`.
func (r *Router) Handle(pattern string, handler http.Handler) {
	method, path, found := strings.Cut(pattern, " ")
	if !found {
		method, path = "", pattern
	}
	if !strings.HasPrefix(path, "/") {
		log.Fatalf("invalid pattern: %s", pattern)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	finalHandler := handler
	if r.group {
		for i := len(r.middleware) - 1; i >= 0; i-- {
			finalHandler = r.middleware[i](finalHandler)
		}
	}

	fullPattern := r.prefix + path
	if method != "" {
		fullPattern = fmt.Sprintf("%s %s", method, fullPattern)
	}
	r.mux.Handle(fullPattern, finalHandler)
}

// Mount registers handler for every method and every path under prefix.
// Unlike Handle, paths reach handler uncleaned: /api//x and /api/a/../b are
// not redirected. A prefix without a trailing slash also matches itself.
func (r *Router) Mount(prefix string, handler http.Handler) {
	if !strings.HasPrefix(prefix, "/") {
		log.Fatalf("invalid mount prefix: %s", prefix)
	}

	r.mu.RLock()
	finalHandler := handler
	if r.group {
		for i := len(r.middleware) - 1; i >= 0; i-- {
			finalHandler = r.middleware[i](finalHandler)
		}
	}
	full := r.prefix + prefix
	r.mu.RUnlock()

	m := mount{prefix: full, patterns: []string{full}, handler: finalHandler}
	if !strings.HasSuffix(full, "/") {
		m.patterns = append(m.patterns, full+"/")
	}
	for _, p := range m.patterns {
		r.mux.Handle(p, finalHandler)
	}

	r.mounts.mu.Lock()
	r.mounts.list = append(r.mounts.list, m)
	r.mounts.mu.Unlock()
}

// dispatch sends requests for a mounted prefix straight to its handler and
// everything else through the mux.
func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	if h := r.mounted(req); h != nil {
		h.ServeHTTP(w, req)
		return
	}
	r.mux.ServeHTTP(w, req)
}

func (r *Router) mounted(req *http.Request) http.Handler {
	r.mounts.mu.RLock()
	defer r.mounts.mu.RUnlock()
	if len(r.mounts.list) == 0 {
		return nil
	}

	_, pattern := r.mux.Handler(req)
	for _, m := range r.mounts.list {
		if slices.Contains(m.patterns, pattern) {
			return m.handler
		}
	}

	// the mux redirects unclean paths; keep those under a mount
	if cleanPath(req.URL.Path) == req.URL.Path {
		return nil
	}
	for _, m := range r.mounts.list {
		if covers(m.prefix, req.URL.Path) {
			return m.handler
		}
	}
	return nil
}

// cleanPath returns the canonical form the mux redirects to.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	np := path.Clean(p)
	if p[len(p)-1] == '/' && np != "/" {
		np += "/"
	}
	return np
}

func covers(prefix, path string) bool {
	if path == strings.TrimSuffix(prefix, "/") {
		return true
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(path, prefix)
}

// Handler returns the mux wrapped in the router-level middleware.
func (r *Router) Handler() http.Handler {
	return r.applyMiddleware()
}

// ListenAndServe starts the HTTP server on addr.
func (r *Router) ListenAndServe(addr string) error {
	log.Printf("starting server on %s", addr)

	r.server.Addr = addr
	r.server.Handler = r.applyMiddleware()
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	log.Println("shutting down server")
	return r.server.Shutdown(ctx)
}

// applyMiddleware wraps the mux in the root middleware. Group middleware was already applied
// per route in Handle.
func (r *Router) applyMiddleware() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var handler http.Handler = http.HandlerFunc(r.dispatch)
	if r.group {
		return handler
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	return handler
}
