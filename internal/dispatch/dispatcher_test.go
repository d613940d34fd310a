package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/transport"
)

func TestDispatcher_RoutesByTypeAndAutoAcks(t *testing.T) {
	a, b := transport.NewPipe("host", "frame")
	chanA := transport.NewChannel(a, "")
	chanB := transport.NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	client := New(chanA, "client-1", "*")
	server := New(chanB, "server-1", "*")

	requestSeen := make(chan bhcore.Envelope, 1)
	server.OnType(bhcore.TypeRequest, func(env bhcore.Envelope, origin string) bool {
		requestSeen <- env
		return true
	})

	ackSeen := make(chan bhcore.Envelope, 1)
	client.OnType(bhcore.TypeAck, func(env bhcore.Envelope, origin string) bool {
		ackSeen <- env
		return true
	})

	ok := client.Send(bhcore.TypeRequest, "req-1", bhcore.Envelope{Path: "/echo", RequireAck: true})
	require.True(t, ok)

	select {
	case env := <-requestSeen:
		assert.Equal(t, "/echo", env.Path)
	case <-time.After(time.Second):
		t.Fatal("server never saw the request")
	}

	select {
	case env := <-ackSeen:
		assert.Equal(t, "req-1", env.RequestID)
		assert.Equal(t, bhcore.TypeAck, env.Type)
	case <-time.After(time.Second):
		t.Fatal("client never received the auto-ack")
	}
}

func TestDispatcher_UnclaimedRequireAckGetsNoAck(t *testing.T) {
	a, b := transport.NewPipe("host", "frame")
	chanA := transport.NewChannel(a, "")
	chanB := transport.NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	client := New(chanA, "client-1", "*")
	New(chanB, "server-1", "*") // no handlers registered: nothing claims the envelope

	ackSeen := make(chan struct{}, 1)
	client.OnType(bhcore.TypeAck, func(env bhcore.Envelope, origin string) bool {
		ackSeen <- struct{}{}
		return true
	})

	client.Send(bhcore.TypeRequest, "req-1", bhcore.Envelope{Path: "/echo", RequireAck: true})

	select {
	case <-ackSeen:
		t.Fatal("an unclaimed envelope must not be auto-acked")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDispatcher_InvalidFrameRepliesError(t *testing.T) {
	a, b := transport.NewPipe("host", "frame")
	chanA := transport.NewChannel(a, "")
	chanB := transport.NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	client := New(chanA, "client-1", "*")
	New(chanB, "server-1", "*")

	errSeen := make(chan bhcore.Envelope, 1)
	client.OnType(bhcore.TypeError, func(env bhcore.Envelope, origin string) bool {
		errSeen <- env
		return true
	})

	// Hand-craft an envelope with a requestId but a bogus type, bypassing
	// Dispatcher.Send's own validation path.
	bad := bhcore.Envelope{Protocol: bhcore.CurrentProtocolVersion, Type: "not_a_real_type", RequestID: "req-9"}
	chanA.Send(bad, "*")

	select {
	case env := <-errSeen:
		assert.Equal(t, "req-9", env.RequestID)
		require.NotNil(t, env.Error)
		assert.Equal(t, string(bhcore.CodeProtocolUnsupported), env.Error.Code)
	case <-time.After(time.Second):
		t.Fatal("server never replied with an error envelope")
	}
}

func TestDispatcher_InboundHookFiresForEveryValidEnvelope(t *testing.T) {
	a, b := transport.NewPipe("host", "frame")
	chanA := transport.NewChannel(a, "")
	chanB := transport.NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	client := New(chanA, "client-1", "*")
	server := New(chanB, "server-1", "*")
	server.OnType(bhcore.TypeRequest, func(bhcore.Envelope, string) bool { return true })

	fired := make(chan InboundEvent, 1)
	server.Inbound.On(func(ev InboundEvent) { fired <- ev })

	client.Send(bhcore.TypeRequest, "req-1", bhcore.Envelope{Path: "/x"})

	select {
	case ev := <-fired:
		assert.Equal(t, "/x", ev.Envelope.Path)
	case <-time.After(time.Second):
		t.Fatal("inbound hook never fired")
	}
}

func TestDispatcher_GateDropsSilently(t *testing.T) {
	a, b := transport.NewPipe("host", "evil-frame")
	chanA := transport.NewChannel(a, "")
	chanB := transport.NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	client := New(chanA, "client-1", "*")
	server := New(chanB, "server-1", "*")
	server.Gate = func(env bhcore.Envelope, origin string) bool { return origin == "trusted-frame" }

	claimed := make(chan struct{}, 1)
	server.OnType(bhcore.TypeRequest, func(bhcore.Envelope, string) bool {
		claimed <- struct{}{}
		return true
	})

	errSeen := make(chan struct{}, 1)
	client.OnType(bhcore.TypeError, func(bhcore.Envelope, string) bool {
		errSeen <- struct{}{}
		return true
	})

	client.Send(bhcore.TypeRequest, "req-1", bhcore.Envelope{Path: "/x", RequireAck: true})

	select {
	case <-claimed:
		t.Fatal("a gated-out origin must never reach a type handler")
	case <-errSeen:
		t.Fatal("a gated-out origin must not even get an error reply")
	case <-time.After(150 * time.Millisecond):
	}
}
