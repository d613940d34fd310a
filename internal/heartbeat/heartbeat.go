// Package heartbeat implements the ping/pong liveness probe (spec §4.6),
// used by the stream engine's idle timer to decide whether a quiet
// stream is merely slow or actually dead.
package heartbeat

import (
	"time"

	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/dispatch"
	"github.com/bridgehub/bridgehub/internal/pending"
)

const bucket = "heartbeat"

// Heartbeat owns the ping/pong exchange for one endpoint. It registers
// itself as the handler for both TypePing and TypePong on the
// dispatcher, so a single instance both answers the peer's pings and
// issues its own.
type Heartbeat struct {
	dispatcher *dispatch.Dispatcher
	pending    *pending.Registry
}

// New creates a Heartbeat bound to dispatcher, using bucket "heartbeat"
// in pendingRegistry for its own outstanding pings.
func New(dispatcher *dispatch.Dispatcher, pendingRegistry *pending.Registry) *Heartbeat {
	h := &Heartbeat{dispatcher: dispatcher, pending: pendingRegistry}
	dispatcher.OnType(bhcore.TypePing, h.handlePing)
	dispatcher.OnType(bhcore.TypePong, h.handlePong)
	return h
}

// Ping sends a ping envelope and blocks until a matching pong arrives or
// timeout elapses. Returns true on a matching pong, false on timeout
// or immediate send failure.
func (h *Heartbeat) Ping(timeout time.Duration) bool {
	id := bhcore.NewID("ping")
	result := make(chan bool, 1)

	op := &pending.Op{Continuation: func(timedOut bool) { result <- !timedOut }}
	h.pending.Set(bucket, id, op, timeout)

	if ok := h.dispatcher.Send(bhcore.TypePing, id, bhcore.Envelope{}); !ok {
		h.pending.Delete(bucket, id)
		return false
	}

	return <-result
}

// handlePing answers an inbound ping with a pong that echoes its
// requestId.
func (h *Heartbeat) handlePing(env bhcore.Envelope, sourceOrigin string) bool {
	h.dispatcher.Send(bhcore.TypePong, env.RequestID, bhcore.Envelope{})
	return true
}

// handlePong completes the pending ping matching the pong's requestId,
// if one is outstanding.
func (h *Heartbeat) handlePong(env bhcore.Envelope, sourceOrigin string) bool {
	op, ok := h.pending.Delete(bucket, env.RequestID)
	if !ok {
		return false
	}
	op.Continuation(false)
	return true
}
