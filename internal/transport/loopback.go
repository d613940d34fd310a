package transport

import "github.com/bridgehub/bridgehub/internal/bhcore"

// pipeEnd implements Window for one side of a loopback Pipe. Its origin
// is a static string stamped on every envelope it hands to its peer, the
// loopback analogue of the origin a real MessageEvent carries alongside
// the posted data.
type pipeEnd struct {
	out       *pipeEnd // the other end
	origin    string   // this end's own origin, reported to the peer on delivery
	deliver   func(env bhcore.Envelope, sourceOrigin string)
	reachable bool
}

func (e *pipeEnd) PostMessage(env bhcore.Envelope, targetOrigin string) bool {
	if !e.out.reachable || e.out.deliver == nil {
		return false
	}
	go e.out.deliver(env, e.origin)
	return true
}

// NewPipe builds a connected pair of Windows, the loopback stand-in for
// two browsing contexts that would otherwise be different windows
// talking over postMessage. Each side's outgoing frame is handed to the
// other side's registered deliver function on its own goroutine — the
// same "goroutine hands values to the consumer" shape the teacher uses
// to move StreamChunks from a provider adapter to the SSE writer, here
// carrying whole envelopes between two Channels instead of text deltas.
//
// originA and originB are the static origins each side reports to its
// peer; an endpoint's origin policy (§4.5) checks incoming envelopes
// against the origin reported on delivery, not against anything in the
// envelope body.
func NewPipe(originA, originB string) (a, b Window) {
	ea := &pipeEnd{origin: originA, reachable: true}
	eb := &pipeEnd{origin: originB, reachable: true}
	ea.out = eb
	eb.out = ea
	return ea, eb
}

// Bind registers the delivery callback for a Window obtained from
// NewPipe. Channel's constructor is the usual caller.
func Bind(w Window, deliver func(env bhcore.Envelope, sourceOrigin string)) {
	if e, ok := w.(*pipeEnd); ok {
		e.deliver = deliver
	}
}

// Sever marks this end unreachable, simulating a closed window: further
// PostMessage calls from the peer return false.
func Sever(w Window) {
	if e, ok := w.(*pipeEnd); ok {
		e.reachable = false
	}
}
