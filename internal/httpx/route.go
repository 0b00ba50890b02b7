package httpx

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateRoute   = errors.New("httpx: route already registered")
	ErrInvalidRoutePath = errors.New("httpx: route path must start with '/'")
)

// HandlerFunc serves one request. Returning nil makes the server answer 500.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Route binds a path and method to a handler.
type Route struct {
	Path    string
	Method  Method
	Handler HandlerFunc
}

// RouteTable is an ordered list of routes. It is filled before the server
// starts and only read afterwards, so lookups take no lock.
type RouteTable struct {
	routes []Route
}

// Insert registers a route. Paths equal under PathEqual count as duplicates.
func (t *RouteTable) Insert(path string, method Method, handler HandlerFunc) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRoutePath, path)
	}
	if handler == nil {
		return fmt.Errorf("httpx: nil handler for %s %s", method, path)
	}
	for _, r := range t.routes {
		if r.Method == method && PathEqual(r.Path, path) {
			return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, path)
		}
	}
	t.routes = append(t.routes, Route{Path: path, Method: method, Handler: handler})
	return nil
}

// Find returns the handler registered for path and method.
func (t *RouteTable) Find(path string, method Method) (HandlerFunc, bool) {
	for _, r := range t.routes {
		if r.Method == method && PathEqual(r.Path, path) {
			return r.Handler, true
		}
	}
	return nil, false
}

// Routes returns the registered routes in insertion order.
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Len returns the number of routes.
func (t *RouteTable) Len() int {
	return len(t.routes)
}
