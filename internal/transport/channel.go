package transport

import (
	"sync"
	"sync/atomic"

	"github.com/bridgehub/bridgehub/internal/bhcore"
)

// Receiver is called for every inbound envelope that passes namespace
// filtering, along with the origin reported by whatever delivered it.
// Multiple receivers can be registered on one Channel — the fan-out that
// lets many endpoints share a single underlying Window.
type Receiver func(env bhcore.Envelope, sourceOrigin string)

// Channel wraps a single Window and fans its inbound envelopes out to
// every registered Receiver (§4.2). It is reference-counted so a pool
// (pool.go) can hand the same Channel to multiple endpoints that agree
// on a namespace and destroy the underlying listener exactly once, when
// the last endpoint releases it.
type Channel struct {
	window    Window
	secretKey string

	mu        sync.RWMutex
	receivers []Receiver
	destroyed bool

	refCount int64
}

// NewChannel wraps window in a Channel scoped to the given namespace
// (secretKey). An empty secretKey accepts every envelope; a non-empty
// one drops any inbound envelope whose SecretKey doesn't match exactly.
func NewChannel(window Window, secretKey string) *Channel {
	c := &Channel{window: window, secretKey: secretKey}
	Bind(window, c.dispatch)
	return c
}

// dispatch is the delivery callback wired to the underlying Window. It
// applies namespace filtering, then fans out to every receiver,
// isolating panics the way the spec requires ("if a receiver throws,
// log and continue").
func (c *Channel) dispatch(env bhcore.Envelope, sourceOrigin string) {
	if c.secretKey != "" && env.SecretKey != c.secretKey {
		return
	}

	c.mu.RLock()
	receivers := make([]Receiver, len(c.receivers))
	copy(receivers, c.receivers)
	c.mu.RUnlock()

	for _, r := range receivers {
		if r == nil {
			continue
		}
		c.deliverSafely(r, env, sourceOrigin)
	}
}

func (c *Channel) deliverSafely(r Receiver, env bhcore.Envelope, sourceOrigin string) {
	defer func() {
		if rec := recover(); rec != nil {
			bhcore.Logger().Printf("channel receiver panicked: %v", rec)
		}
	}()
	r(env, sourceOrigin)
}

// AddReceiver registers fn to be called for every inbound envelope that
// passes namespace filtering. Returns a function that removes it.
func (c *Channel) AddReceiver(fn Receiver) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receivers = append(c.receivers, fn)
	idx := len(c.receivers) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.receivers) {
			c.receivers[idx] = nil
		}
	}
}

// Send posts env to target via the underlying Window, stamping SecretKey
// from the channel's namespace so the peer's filtering matches. Returns
// false if the target reports itself unreachable.
func (c *Channel) Send(env bhcore.Envelope, targetOrigin string) bool {
	c.mu.RLock()
	destroyed := c.destroyed
	c.mu.RUnlock()
	if destroyed {
		return false
	}
	env.SecretKey = c.secretKey
	return c.window.PostMessage(env, targetOrigin)
}

// Destroy detaches this channel from its underlying Window. Idempotent:
// calling it twice is a no-op the second time.
func (c *Channel) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	Bind(c.window, func(bhcore.Envelope, string) {})
	c.receivers = nil
}

// AddRef increments the pooled reference count and returns the new
// count.
func (c *Channel) AddRef() int64 {
	return atomic.AddInt64(&c.refCount, 1)
}

// Release decrements the pooled reference count. When it reaches zero,
// Destroy is called automatically. Returns the new count.
func (c *Channel) Release() int64 {
	n := atomic.AddInt64(&c.refCount, -1)
	if n <= 0 {
		c.Destroy()
	}
	return n
}
