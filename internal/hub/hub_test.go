package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/transport"
)

func TestOriginPolicy_ExactAndWildcardAndRegex(t *testing.T) {
	exact := AllowExact("https://a.example")
	assert.True(t, exact.Check("https://a.example"))
	assert.False(t, exact.Check("https://b.example"))

	wildcard := Allow()
	assert.True(t, wildcard.Check("anything"))

	regex := AllowExact("re:^https://.*\\.example$")
	assert.True(t, regex.Check("https://sub.example"))
	assert.False(t, regex.Check("https://sub.other"))

	predicate := AllowFunc(func(origin string) bool { return origin == "special" })
	assert.True(t, predicate.Check("special"))
	assert.False(t, predicate.Check("other"))
}

func TestOriginPolicy_EmptyPolicyRejectsEverything(t *testing.T) {
	var p OriginPolicy
	assert.False(t, p.Check("https://a.example"))
}

func TestHub_GatesInboundByOrigin(t *testing.T) {
	a, b := transport.NewPipe("trusted", "server-origin")
	chanA := transport.NewChannel(a, "")
	chanB := transport.NewChannel(b, "")

	serverHub := New(chanB, Options{ID: "server-1", TargetOrigin: "*", Origin: AllowExact("trusted")})
	defer serverHub.Close()
	clientHub := New(chanA, Options{ID: "client-1", TargetOrigin: "*", Origin: Allow()})
	defer clientHub.Close()

	claimed := make(chan struct{}, 1)
	serverHub.Dispatcher.OnType(bhcore.TypeRequest, func(bhcore.Envelope, string) bool {
		claimed <- struct{}{}
		return true
	})

	clientHub.Dispatcher.Send(bhcore.TypeRequest, "req-1", bhcore.Envelope{Path: "/x"})

	select {
	case <-claimed:
	case <-time.After(time.Second):
		t.Fatal("a trusted origin should pass the gate")
	}
}

func TestHub_CloseIsIdempotentAndFiresOnDestroyOnce(t *testing.T) {
	a, _ := transport.NewPipe("x", "y")
	ch := transport.NewChannel(a, "")
	h := New(ch, Options{ID: "h1", TargetOrigin: "*", Origin: Allow()})

	fired := 0
	h.OnDestroy.On(func(struct{}) { fired++ })

	h.Close()
	h.Close()

	assert.True(t, h.IsClosed())
	// Hooks.Fire copies the listener slice synchronously, so by the time
	// the second Close returns the first's OnDestroy.Fire has already
	// completed.
	assert.Equal(t, 1, fired)
}
