package httputil

import (
	"fmt"
	"net/http"
	"slices"
	"sync"
)

// Middleware wraps an http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// Router collects method-qualified routes on an http.ServeMux using the
// Go 1.22 "METHOD /pattern" form, with a shared middleware chain. It only
// builds a handler — the caller decides how to serve it, which lets a
// configuration reload swap a freshly built router in without restarting
// the listener.
type Router struct {
	mux        *http.ServeMux
	prefix     string
	middleware []Middleware
	mu         sync.RWMutex
}

func NewRouter() *Router {
	return &Router{mux: http.NewServeMux()}
}

// Use appends middleware. Middleware are applied in the order added, the
// first being the outermost wrapper.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Group returns a sub-router whose routes share a path prefix. The
// sub-router inherits the parent's middleware as of the call.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Router{
		mux:        r.mux,
		prefix:     r.prefix + prefix,
		middleware: slices.Clone(r.middleware),
	}
}

// Handle registers a handler for the given HTTP method and path pattern.
// Patterns may contain {param} wildcards, resolved via http.Request.PathValue.
func (r *Router) Handle(method, pattern string, handler http.Handler) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.mux.Handle(fmt.Sprintf("%s %s%s", method, r.prefix, pattern), handler)
}

// HandleFunc is Handle for plain functions.
func (r *Router) HandleFunc(method, pattern string, handler http.HandlerFunc) {
	r.Handle(method, pattern, handler)
}

// Handler returns the mux wrapped in the middleware chain.
func (r *Router) Handler() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var h http.Handler = r.mux
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h
}
