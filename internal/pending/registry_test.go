package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SetGetDelete(t *testing.T) {
	r := NewRegistry()
	called := false
	op := &Op{Continuation: func(timedOut bool) { called = true }}

	r.Set("client", "req-1", op, 0)

	got, ok := r.Get("client", "req-1")
	require.True(t, ok)
	assert.Same(t, op, got)

	deleted, ok := r.Delete("client", "req-1")
	require.True(t, ok)
	assert.Same(t, op, deleted)
	assert.False(t, called, "Delete alone must not invoke the continuation")

	_, ok = r.Get("client", "req-1")
	assert.False(t, ok)
}

func TestRegistry_TimeoutFiresExactlyOnceAndClearsEntry(t *testing.T) {
	r := NewRegistry()
	fired := make(chan bool, 1)
	op := &Op{Continuation: func(timedOut bool) { fired <- timedOut }}

	r.Set("client", "req-1", op, 20*time.Millisecond)

	select {
	case timedOut := <-fired:
		assert.True(t, timedOut)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	assert.Equal(t, 0, r.Len("client"), "a fired timer must delete its entry")
}

func TestRegistry_DeleteBeforeTimeoutPreventsFiring(t *testing.T) {
	r := NewRegistry()
	fired := false
	op := &Op{Continuation: func(timedOut bool) { fired = true }}

	r.Set("client", "req-1", op, 30*time.Millisecond)
	_, ok := r.Delete("client", "req-1")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired, "deleting before the timer fires must clear it")
}

func TestRegistry_DrainBucketCancelsEverything(t *testing.T) {
	r := NewRegistry()
	var cancelled []string
	op1 := &Op{Continuation: func(bool) {}}
	op2 := &Op{Continuation: func(bool) {}}
	r.Set("client", "req-1", op1, time.Minute)
	r.Set("client", "req-2", op2, time.Minute)

	r.DrainBucket("client", func(op *Op) {
		cancelled = append(cancelled, "x")
		op.Continuation(false)
	})

	assert.Len(t, cancelled, 2)
	assert.Equal(t, 0, r.Len("client"))
}

func TestRegistry_SnapshotReportsNonEmptyBuckets(t *testing.T) {
	r := NewRegistry()
	r.Set("client-ack", "req-1", &Op{Continuation: func(bool) {}}, 0)
	r.Set("client-ack", "req-2", &Op{Continuation: func(bool) {}}, 0)
	r.Set("client-response", "req-3", &Op{Continuation: func(bool) {}}, 0)

	snap := r.Snapshot()
	assert.Equal(t, 2, snap["client-ack"])
	assert.Equal(t, 1, snap["client-response"])
	assert.NotContains(t, snap, "client-async")
}
