// Package routing implements path pattern compilation and dispatch
// (§4.10): ":param" named captures, exact-path-first matching ahead of
// compiled patterns, and a prefix-scoped middleware chain that stops
// advancing as soon as a response has been sent.
package routing

import (
	"strings"
	"sync"
)

// ResponseState lets the router ask a request/response context whether
// a response has already gone out, so the middleware chain can
// short-circuit instead of running handlers whose work would be wasted
// (or, worse, attempt a second response).
type ResponseState interface {
	Sent() bool
}

// HandlerFunc handles a matched route.
type HandlerFunc[C ResponseState] func(c C, params map[string]string)

// MiddlewareFunc runs ahead of route dispatch for any path under its
// registered prefix. It must call next to continue the chain; not
// calling it ends the chain there.
type MiddlewareFunc[C ResponseState] func(c C, params map[string]string, next func())

type segment struct {
	literal string
	isParam bool
	name    string
}

type compiledRoute[C ResponseState] struct {
	segments []segment
	handler  HandlerFunc[C]
}

type middlewareEntry[C ResponseState] struct {
	prefix string
	fn     MiddlewareFunc[C]
}

// Router dispatches requests of path C to registered routes and
// middleware. The zero value is not usable — build one with New.
type Router[C ResponseState] struct {
	mu          sync.Mutex
	exact       map[string]HandlerFunc[C]
	patterns    []compiledRoute[C]
	middlewares []middlewareEntry[C]
}

// New creates an empty Router.
func New[C ResponseState]() *Router[C] {
	return &Router[C]{exact: make(map[string]HandlerFunc[C])}
}

// Handle registers h for pattern. A pattern with no ":param" segment is
// an exact route, checked before any compiled pattern regardless of
// registration order (§4.10's exact-path-first rule); patterns compete
// in registration order, first match wins.
func (r *Router[C]) Handle(pattern string, h HandlerFunc[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !strings.Contains(pattern, ":") {
		r.exact[normalize(pattern)] = h
		return
	}
	r.patterns = append(r.patterns, compiledRoute[C]{segments: compile(pattern), handler: h})
}

// Use registers mw to run for every path under prefix. An empty prefix
// matches every path.
func (r *Router[C]) Use(prefix string, mw MiddlewareFunc[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, middlewareEntry[C]{prefix: prefix, fn: mw})
}

// Dispatch runs the middleware chain for path, then the matched route's
// handler, threading path params through both. It reports whether a
// route was found; callers typically respond with a METHOD_NOT_FOUND
// error themselves when it's false and nothing was sent.
func (r *Router[C]) Dispatch(c C, path string) (found bool) {
	r.mu.Lock()
	handler, params, found := r.lookup(path)
	applicable := make([]middlewareEntry[C], 0, len(r.middlewares))
	for _, mw := range r.middlewares {
		if prefixMatches(mw.prefix, normalize(path)) {
			applicable = append(applicable, mw)
		}
	}
	r.mu.Unlock()

	final := func() {
		if handler != nil {
			handler(c, params)
		}
	}

	var build func(i int) func()
	build = func(i int) func() {
		if i >= len(applicable) {
			return func() {
				if c.Sent() {
					return
				}
				final()
			}
		}
		mw := applicable[i]
		next := build(i + 1)
		return func() {
			if c.Sent() {
				return
			}
			mw.fn(c, params, next)
		}
	}
	build(0)()
	return found
}

func (r *Router[C]) lookup(path string) (HandlerFunc[C], map[string]string, bool) {
	norm := normalize(path)
	if h, ok := r.exact[norm]; ok {
		return h, map[string]string{}, true
	}
	parts := splitPath(norm)
	for _, route := range r.patterns {
		if params, ok := match(route.segments, parts); ok {
			return route.handler, params, true
		}
	}
	return nil, nil, false
}

// prefixMatches implements §4.10's exact rule: a middleware with no
// prefix matches every path; otherwise it matches only P == prefix or P
// starting with prefix + "/" (so "/admin" does not match "/adminfoo").
func prefixMatches(prefix, path string) bool {
	if prefix == "" {
		return true
	}
	prefix = normalize(prefix)
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "/")
}

func compile(pattern string) []segment {
	parts := splitPath(pattern)
	segs := make([]segment, len(parts))
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			segs[i] = segment{isParam: true, name: p[1:]}
		} else {
			segs[i] = segment{literal: p}
		}
	}
	return segs
}

func match(segs []segment, parts []string) (map[string]string, bool) {
	if len(segs) != len(parts) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range segs {
		if seg.isParam {
			params[seg.name] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}
