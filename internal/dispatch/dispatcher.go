// Package dispatch implements the message dispatcher (spec §4.4): the
// inbound pipeline that validates every envelope arriving on a Channel,
// fires the "inbound" hook, auto-emits acks, and routes by Type to
// whichever handler has claimed that type; and the outbound path that
// stamps, sends, and fires the "afterSend" hook.
package dispatch

import (
	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/protocol"
	"github.com/bridgehub/bridgehub/internal/transport"
)

// Handler processes one inbound envelope of a type it was registered
// for. It returns claimed=true when it recognized and acted on the
// envelope — only a claimed envelope with RequireAck triggers an
// auto-ack reply (§4.4 step 3: "the dispatcher accepts it").
type Handler func(env bhcore.Envelope, sourceOrigin string) (claimed bool)

// SendOutcome is fired on the AfterSend hook after every outbound send
// attempt.
type SendOutcome struct {
	Envelope bhcore.Envelope
	OK       bool
}

// InboundEvent is fired on the Inbound hook for every envelope that
// passes frame validation and the gate, before routing.
type InboundEvent struct {
	Envelope     bhcore.Envelope
	SourceOrigin string
}

// Dispatcher owns a Channel and runs the inbound/outbound pipeline
// described in §4.4.
type Dispatcher struct {
	channel      *transport.Channel
	creatorID    string
	targetOrigin string

	handlers map[bhcore.Type]Handler

	// Gate runs after frame validation and before anything else — the
	// endpoint hub wires its origin policy (§4.5) in here. A false
	// return drops the envelope silently: no hook fires, no auto-ack,
	// no error reply (origin failures must not leak endpoint existence).
	Gate func(env bhcore.Envelope, sourceOrigin string) bool

	Inbound   bhcore.Hooks[InboundEvent]
	AfterSend bhcore.Hooks[SendOutcome]

	removeReceiver func()
}

// New creates a Dispatcher bound to channel. creatorID is stamped onto
// every outbound envelope's CreatorID field (unless already set by the
// caller); targetOrigin is the origin outbound sends are addressed to.
func New(channel *transport.Channel, creatorID, targetOrigin string) *Dispatcher {
	d := &Dispatcher{
		channel:      channel,
		creatorID:    creatorID,
		targetOrigin: targetOrigin,
		handlers:     make(map[bhcore.Type]Handler),
	}
	d.removeReceiver = channel.AddReceiver(d.onEnvelope)
	return d
}

// OnType registers the handler for inbound envelopes of the given type.
// A second registration for the same type replaces the first.
func (d *Dispatcher) OnType(typ bhcore.Type, h Handler) {
	d.handlers[typ] = h
}

// SetTargetOrigin updates the origin outbound sends are addressed to.
func (d *Dispatcher) SetTargetOrigin(origin string) {
	d.targetOrigin = origin
}

func (d *Dispatcher) onEnvelope(env bhcore.Envelope, sourceOrigin string) {
	result := protocol.Validate(env)
	if !result.OK {
		if env.RequestID != "" {
			d.Send(bhcore.TypeError, env.RequestID, bhcore.Envelope{
				Status:     400,
				StatusText: "Bad Request",
				Error:      &bhcore.ErrorPayload{Message: result.Reason, Code: string(bhcore.CodeProtocolUnsupported)},
			})
		}
		return
	}

	if d.Gate != nil && !d.Gate(env, sourceOrigin) {
		return
	}

	d.Inbound.Fire(InboundEvent{Envelope: env, SourceOrigin: sourceOrigin})

	h, ok := d.handlers[env.Type]
	claimed := false
	if ok {
		claimed = h(env, sourceOrigin)
	}

	if env.RequireAck && claimed {
		ackID := ""
		if env.Ack != nil {
			ackID = env.Ack.ID
		}
		d.Send(bhcore.TypeAck, env.RequestID, bhcore.Envelope{Ack: &bhcore.AckRef{ID: ackID}})
	}
}

// Send builds an envelope of the given type via protocol.Encode, stamps
// CreatorID if not already set, posts it to the channel, and fires
// AfterSend with the outcome.
func (d *Dispatcher) Send(typ bhcore.Type, requestID string, fields bhcore.Envelope) bool {
	if fields.CreatorID == "" {
		fields.CreatorID = d.creatorID
	}
	env := protocol.Encode(typ, requestID, fields)
	ok := d.channel.Send(env, d.targetOrigin)
	d.AfterSend.Fire(SendOutcome{Envelope: env, OK: ok})
	return ok
}

// Close detaches the dispatcher from its channel. Idempotent.
func (d *Dispatcher) Close() {
	if d.removeReceiver != nil {
		d.removeReceiver()
		d.removeReceiver = nil
	}
}
