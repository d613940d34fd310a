package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/bridgehub/bridgehub/internal/dispatch"
	"github.com/bridgehub/bridgehub/internal/pending"
	"github.com/bridgehub/bridgehub/internal/transport"
)

func TestHeartbeat_PingSucceedsWhenPeerAnswers(t *testing.T) {
	a, b := transport.NewPipe("a", "b")
	chanA := transport.NewChannel(a, "")
	chanB := transport.NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	dispA := dispatch.New(chanA, "side-a", "*")
	dispB := dispatch.New(chanB, "side-b", "*")

	hbA := New(dispA, pending.NewRegistry())
	New(dispB, pending.NewRegistry())

	ok := hbA.Ping(time.Second)
	assert.True(t, ok)
}

func TestHeartbeat_PingFailsWhenPeerUnreachable(t *testing.T) {
	a, b := transport.NewPipe("a", "b")
	chanA := transport.NewChannel(a, "")
	defer chanA.Destroy()

	dispA := dispatch.New(chanA, "side-a", "*")
	hbA := New(dispA, pending.NewRegistry())

	transport.Sever(b) // the peer is unreachable, so the ping send itself fails at once
	ok := hbA.Ping(50 * time.Millisecond)
	assert.False(t, ok)
}
