// Package transport adapts a single asynchronous message source — the Go
// analogue of a browser window's postMessage target — into typed,
// fan-out receivers shared by reference count across endpoints (spec
// §4.2).
//
// A real cross-frame deployment would back Window with something that
// hands frames to a paired browser context; bridgehub ships a loopback
// implementation (Pipe, in loopback.go) for tests and the demo binary,
// the same way the teacher's Provider interface is backed by real
// network adapters in production but can be faked in tests.
package transport

import "github.com/bridgehub/bridgehub/internal/bhcore"

// Window is the send-side contract a Channel needs: something that can
// accept a posted envelope and report whether the peer actually received
// it. PostMessage returns false when the target is unreachable (the
// window was closed, the frame navigated away, etc.) — callers use that
// to drive the TARGET_WINDOW_CLOSED failure path (§4.7.2).
type Window interface {
	// PostMessage delivers env to whatever is on the other side of this
	// Window, addressed to the given origin. Returns false if delivery
	// is known to be impossible (peer gone).
	PostMessage(env bhcore.Envelope, targetOrigin string) bool
}

// WindowFunc adapts a plain function to the Window interface.
type WindowFunc func(env bhcore.Envelope, targetOrigin string) bool

func (f WindowFunc) PostMessage(env bhcore.Envelope, targetOrigin string) bool {
	return f(env, targetOrigin)
}
