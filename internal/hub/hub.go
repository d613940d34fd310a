package hub

import (
	"sync"

	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/dispatch"
	"github.com/bridgehub/bridgehub/internal/pending"
	"github.com/bridgehub/bridgehub/internal/transport"
)

// Hub composes a channel, a dispatcher, and a pending-ops registry
// behind the open/close/destroy lifecycle shared by the client and
// server roles (§4.5). It is the one place origin policy is enforced:
// every inbound envelope is gated through OriginPolicy.Check before the
// dispatcher fires any hook or handler.
type Hub struct {
	ID         string
	Channel    *transport.Channel
	Dispatcher *dispatch.Dispatcher
	Pending    *pending.Registry

	// OnDestroy fires once, when Close is first called, so role-specific
	// owners (client/server) can drain their own pending-op buckets with
	// a TARGET_WINDOW_CLOSED-class error (§5).
	OnDestroy bhcore.Hooks[struct{}]

	origin OriginPolicy
	mu     sync.Mutex
	closed bool

	releaseChannel func()
}

// Options configures a new Hub.
type Options struct {
	ID           string
	TargetOrigin string
	Origin       OriginPolicy
	// ReleaseChannel, if set, is called on Close instead of
	// Channel.Destroy — used when the channel came from a pool and
	// should be released (ref-counted) rather than unconditionally torn
	// down.
	ReleaseChannel func()
}

// New builds a Hub around channel with the given options.
func New(channel *transport.Channel, opts Options) *Hub {
	d := dispatch.New(channel, opts.ID, opts.TargetOrigin)
	h := &Hub{
		ID:             opts.ID,
		Channel:        channel,
		Dispatcher:     d,
		Pending:        pending.NewRegistry(),
		origin:         opts.Origin,
		releaseChannel: opts.ReleaseChannel,
	}
	d.Gate = h.checkOrigin
	return h
}

func (h *Hub) checkOrigin(env bhcore.Envelope, sourceOrigin string) bool {
	return h.origin.Check(sourceOrigin)
}

// IsClosed reports whether Close has already run.
func (h *Hub) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close tears the hub down: fires OnDestroy (so owners can fail their
// pending ops), detaches the dispatcher from the channel, and releases
// or destroys the channel. Idempotent — a second call is a no-op, per
// §8's "closing a closed endpoint is a no-op".
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.OnDestroy.Fire(struct{}{})
	h.Dispatcher.Close()
	if h.releaseChannel != nil {
		h.releaseChannel()
	} else {
		h.Channel.Destroy()
	}
}
