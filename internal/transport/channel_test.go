package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/bridgehub/bridgehub/internal/bhcore"
)

func TestChannel_FansOutToMultipleReceivers(t *testing.T) {
	a, b := NewPipe("https://host.example", "https://frame.example")
	chanA := NewChannel(a, "")
	chanB := NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	var mu sync.Mutex
	var got1, got2 []string
	done := make(chan struct{}, 2)

	chanB.AddReceiver(func(env bhcore.Envelope, origin string) {
		mu.Lock()
		got1 = append(got1, env.Path)
		mu.Unlock()
		done <- struct{}{}
	})
	chanB.AddReceiver(func(env bhcore.Envelope, origin string) {
		mu.Lock()
		got2 = append(got2, env.Path)
		mu.Unlock()
		done <- struct{}{}
	})

	ok := chanA.Send(bhcore.Envelope{Path: "/echo"}, "*")
	assert.True(t, ok)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/echo"}, got1)
	assert.Equal(t, []string{"/echo"}, got2)
}

func TestChannel_ReportsSourceOrigin(t *testing.T) {
	a, b := NewPipe("https://host.example", "https://frame.example")
	chanA := NewChannel(a, "")
	chanB := NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	origin := make(chan string, 1)
	chanB.AddReceiver(func(env bhcore.Envelope, sourceOrigin string) { origin <- sourceOrigin })

	chanA.Send(bhcore.Envelope{Path: "/x"}, "*")

	select {
	case got := <-origin:
		assert.Equal(t, "https://host.example", got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestChannel_NamespaceFiltering(t *testing.T) {
	a, b := NewPipe("a", "b")
	chanA := NewChannel(a, "ns-1")
	chanB := NewChannel(b, "ns-2")
	defer chanA.Destroy()
	defer chanB.Destroy()

	received := make(chan bhcore.Envelope, 1)
	chanB.AddReceiver(func(env bhcore.Envelope, origin string) { received <- env })

	chanA.Send(bhcore.Envelope{Path: "/blocked"}, "*")

	select {
	case <-received:
		t.Fatal("envelope from a mismatched namespace should be dropped")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_ReceiverPanicIsolation(t *testing.T) {
	a, b := NewPipe("a", "b")
	chanA := NewChannel(a, "")
	chanB := NewChannel(b, "")
	defer chanA.Destroy()
	defer chanB.Destroy()

	done := make(chan struct{}, 1)
	chanB.AddReceiver(func(bhcore.Envelope, string) { panic("boom") })
	chanB.AddReceiver(func(bhcore.Envelope, string) { done <- struct{}{} })

	chanA.Send(bhcore.Envelope{Path: "/x"}, "*")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a panicking receiver must not block the rest")
	}
}

func TestChannel_SendFailsWhenTargetUnreachable(t *testing.T) {
	a, b := NewPipe("a", "b")
	chanA := NewChannel(a, "")
	NewChannel(b, "")
	Sever(b)

	ok := chanA.Send(bhcore.Envelope{Path: "/x"}, "*")
	assert.False(t, ok)
}

func TestChannel_DestroyIsIdempotent(t *testing.T) {
	a, _ := NewPipe("a", "b")
	ch := NewChannel(a, "")
	ch.Destroy()
	assert.NotPanics(t, func() { ch.Destroy() })
}

func TestPool_RefCountingDestroysOnLastRelease(t *testing.T) {
	pool := NewPool()
	a, _ := NewPipe("a", "b")

	created := 0
	newCh := func() *Channel {
		created++
		return NewChannel(a, "ns")
	}

	ch1 := pool.Acquire("ns", newCh)
	ch2 := pool.Acquire("ns", newCh)
	assert.Same(t, ch1, ch2)
	assert.Equal(t, 1, created, "pool should create the channel exactly once per namespace")

	pool.Release("ns")
	pool.mu.Lock()
	_, stillPresent := pool.channels["ns"]
	pool.mu.Unlock()
	assert.True(t, stillPresent, "one outstanding reference should keep the channel alive")

	pool.Release("ns")
	pool.mu.Lock()
	_, stillPresent = pool.channels["ns"]
	pool.mu.Unlock()
	assert.False(t, stillPresent, "releasing the last reference should evict the channel")
}
