// Package interceptor implements the ordered fulfilled/rejected handler
// chains (§4.8.1) that sit in front of a client's outbound request and
// behind its inbound response: each interceptor can transform the value
// flowing through, or recover from an error raised by an earlier one.
package interceptor

import "sync"

// Handler is one link in a Chain. Fulfilled runs when the chain hasn't
// failed yet and transforms the in-flight value; Rejected runs once the
// chain has failed and may recover (return a value and a nil error) or
// pass the failure (possibly a different one) along.
type Handler[T any] struct {
	Fulfilled func(T) (T, error)
	Rejected  func(T, error) (T, error)
}

// Chain runs a sequence of Handlers over a value of type T, the way a
// promise chain threads a value through .then(onFulfilled, onRejected)
// calls (§4.8.1). Handlers registered later run later.
type Chain[T any] struct {
	mu       sync.Mutex
	handlers []Handler[T]
}

// New creates an empty Chain.
func New[T any]() *Chain[T] {
	return &Chain[T]{}
}

// Use appends h to the chain and returns a function that removes it.
func (c *Chain[T]) Use(h Handler[T]) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
	idx := len(c.handlers) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.handlers) {
			c.handlers[idx] = Handler[T]{}
		}
	}
}

// Run threads initial through every registered handler in order. While
// no error is outstanding, each handler's Fulfilled runs; once one
// fails, subsequent handlers' Rejected get a chance to recover (return a
// value with a nil error) before the failure reaches the caller.
func (c *Chain[T]) Run(initial T) (T, error) {
	c.mu.Lock()
	handlers := make([]Handler[T], len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	val := initial
	var err error
	for _, h := range handlers {
		if err == nil {
			if h.Fulfilled != nil {
				val, err = h.Fulfilled(val)
			}
			continue
		}
		if h.Rejected != nil {
			val, err = h.Rejected(val, err)
		}
	}
	return val, err
}
