package streaming

import (
	"fmt"
	"sync"
	"time"

	"github.com/bridgehub/bridgehub/internal/bhcore"
)

// Producer pulls the next chunk for a pull-mode Writer. ok is false when
// no chunk is available yet (the writer will try again once more credit
// or a nudge arrives); done is true on the final call, whether or not it
// also carries a last chunk.
type Producer func() (chunk any, done bool, ok bool)

// WriterOptions configures a new Writer (§4.7.2).
type WriterOptions struct {
	StreamID string // generated if empty
	Mode     string // "pull" or "push"
	Kind     string // "data" or "file"
	Chunked  bool

	// Producer, set only in pull mode, is polled for data whenever
	// credit is available. Push-mode writers are driven by Write/End
	// instead and must leave this nil.
	Producer Producer

	ExpireTimeout time.Duration
	IdleTimeout   time.Duration

	MaxPendingChunks int
	MaxPendingBytes  int

	AutoResolve bool
	Metadata    any
}

// WriteOptions configures a single Write call.
type WriteOptions struct {
	Done       bool
	RequireAck bool
	AckTimeout time.Duration
}

type queuedChunk struct {
	seq        int
	wire       any
	byteLen    int
	done       bool
	requireAck bool
	ackID      string
}

// Writer is the producer side of a stream (§4.7.2): it owns the credit
// counter granted by the reader's stream_pull frames, enqueues chunks
// (from Write calls in push mode, or from Producer in pull mode) and
// flushes them onto the wire as credit allows.
type Writer struct {
	opts  WriterOptions
	codec ChunkCodec
	fsm   *fsm

	binding *Binding

	mu           sync.Mutex
	credit       int
	seq          int
	queue        []queuedChunk
	pendingBytes int
	ackWaiters   map[string]chan bool

	expireTimer *time.Timer
	idleTimer   *time.Timer
}

// NewWriter builds a Writer. Call Bind then Start before Write/End.
func NewWriter(opts WriterOptions, codec ChunkCodec) *Writer {
	if opts.StreamID == "" {
		opts.StreamID = bhcore.NewID("stream")
	}
	return &Writer{
		opts:       opts,
		codec:      codec,
		fsm:        newFSM(),
		ackWaiters: make(map[string]chan bool),
	}
}

// StreamID returns the writer's stream id.
func (w *Writer) StreamID() string { return w.opts.StreamID }

// State returns the writer's current lifecycle state.
func (w *Writer) State() State { return w.fsm.State() }

// Bind attaches the writer to its request context. Must be called
// exactly once, before Start.
func (w *Writer) Bind(b Binding) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.binding != nil {
		return bhcore.NewError(bhcore.CodeStreamError, "writer already bound")
	}
	w.binding = &b
	return nil
}

// Start transitions pending -> streaming and sends the stream_start
// frame. If the send fails (peer unreachable) the stream immediately
// enters cancelled and Start returns TARGET_WINDOW_CLOSED (§4.7.2).
func (w *Writer) Start() error {
	w.mu.Lock()
	b := w.binding
	w.mu.Unlock()
	if b == nil {
		return bhcore.NewError(bhcore.CodeStreamNotBound, "writer.Start called before Bind")
	}
	if !w.fsm.markStreaming() {
		return bhcore.NewError(bhcore.CodeStreamError, "writer already started")
	}
	b.Registry.registerWriter(w.opts.StreamID, w)

	ok := b.Dispatcher.Send(bhcore.TypeStreamStart, b.RequestID, bhcore.Envelope{
		Role:      b.Role,
		CreatorID: b.CreatorID,
		TargetID:  b.TargetID,
		Body: bhcore.StreamStartBody{
			StreamID:    w.opts.StreamID,
			Type:        w.opts.Kind,
			Mode:        w.opts.Mode,
			Chunked:     w.opts.Chunked,
			Metadata:    w.opts.Metadata,
			AutoResolve: w.opts.AutoResolve,
		},
	})
	if !ok {
		err := bhcore.NewError(bhcore.CodeTargetWindowClosed, "stream_start send failed")
		w.fsm.transitionTerminal(StateCancelled, err)
		b.Registry.unregisterWriter(w.opts.StreamID)
		return err
	}

	if w.opts.ExpireTimeout > 0 {
		w.expireTimer = time.AfterFunc(w.opts.ExpireTimeout, w.onExpire)
	}
	if w.opts.IdleTimeout > 0 {
		w.resetIdleTimer()
	}
	go w.tryFlush()
	return nil
}

// Write enqueues data (subject to the configured backpressure limits)
// and flushes it immediately if credit allows. Valid only in push mode,
// or as a manual nudge alongside a Producer.
func (w *Writer) Write(data any, opts WriteOptions) (<-chan bool, error) {
	if w.fsm.State().IsTerminal() {
		return nil, bhcore.NewError(bhcore.CodeStreamError, "write on a terminated stream")
	}
	wire, byteLen := w.codec.EncodeChunk(data)

	w.mu.Lock()
	if w.opts.MaxPendingChunks > 0 && len(w.queue)+1 > w.opts.MaxPendingChunks {
		w.mu.Unlock()
		return nil, bhcore.NewError(bhcore.CodeStreamOverflow, "maxPendingChunks exceeded")
	}
	if w.opts.MaxPendingBytes > 0 && w.pendingBytes+byteLen > w.opts.MaxPendingBytes {
		w.mu.Unlock()
		return nil, bhcore.NewError(bhcore.CodeStreamOverflow, "maxPendingBytes exceeded")
	}
	w.seq++
	seq := w.seq
	var ackCh chan bool
	ackID := ""
	if opts.RequireAck {
		ackID = fmt.Sprintf("%s:%d", w.opts.StreamID, seq)
		ackCh = make(chan bool, 1)
		w.ackWaiters[ackID] = ackCh
		timeout := opts.AckTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		time.AfterFunc(timeout, func() { w.resolveAck(ackID, false) })
	}
	w.queue = append(w.queue, queuedChunk{seq: seq, wire: wire, byteLen: byteLen, done: opts.Done, requireAck: opts.RequireAck, ackID: ackID})
	w.pendingBytes += byteLen
	w.mu.Unlock()

	go w.tryFlush()
	return ackCh, nil
}

// End marks the stream complete: either the last queued chunk is
// flagged done, or, if the queue is empty, an empty terminal chunk is
// enqueued.
func (w *Writer) End() {
	w.mu.Lock()
	if len(w.queue) > 0 {
		w.queue[len(w.queue)-1].done = true
	} else {
		w.seq++
		w.queue = append(w.queue, queuedChunk{seq: w.seq, done: true})
	}
	w.mu.Unlock()
	go w.tryFlush()
}

// Cancel transitions the stream to cancelled and notifies the peer with
// a best-effort stream_cancel frame.
func (w *Writer) Cancel(reason string) {
	if !w.fsm.transitionTerminal(StateCancelled, bhcore.NewError(bhcore.CodeStreamCancelled, reason)) {
		return
	}
	if b := w.binding; b != nil {
		b.Dispatcher.Send(bhcore.TypeStreamCancel, b.RequestID, bhcore.Envelope{
			Body: bhcore.StreamCancelBody{StreamID: w.opts.StreamID, Reason: reason},
		})
	}
	w.cleanup()
}

// remoteCancel handles a stream_cancel received from the peer — no
// re-send, the peer already knows.
func (w *Writer) remoteCancel(reason string) {
	if !w.fsm.transitionTerminal(StateCancelled, bhcore.NewError(bhcore.CodeStreamCancelled, reason)) {
		return
	}
	w.cleanup()
}

// Wait blocks until the stream reaches a terminal state and returns nil
// for a clean end, or the terminal error otherwise.
func (w *Writer) Wait() error {
	<-w.fsm.Done()
	_, err := asError(w.fsm.State(), w.fsm.Err())
	return err
}

func (w *Writer) grantCredit(n int) {
	w.mu.Lock()
	w.credit += n
	w.mu.Unlock()
	go w.tryFlush()
}

func (w *Writer) resolveAck(id string, ok bool) bool {
	w.mu.Lock()
	ch, found := w.ackWaiters[id]
	if found {
		delete(w.ackWaiters, id)
	}
	w.mu.Unlock()
	if !found {
		return false
	}
	ch <- ok
	return true
}

// tryFlush sends queued (or producer-pulled) chunks while credit and
// data are both available. It runs on its own goroutine invocation each
// time it's triggered, never inline under w.mu, so a slow Producer call
// never blocks Write/grantCredit callers.
func (w *Writer) tryFlush() {
	for {
		if w.fsm.State() != StateStreaming {
			return
		}
		w.mu.Lock()
		if w.credit <= 0 {
			w.mu.Unlock()
			return
		}
		var chunk queuedChunk
		haveChunk := false
		if len(w.queue) > 0 {
			chunk = w.queue[0]
			w.queue = w.queue[1:]
			w.pendingBytes -= chunk.byteLen
			w.credit--
			haveChunk = true
			w.mu.Unlock()
		} else if w.opts.Producer != nil {
			// Reserve the credit before releasing the lock so a second
			// concurrent tryFlush can't also observe credit > 0 and pull
			// its own chunk for the same grant.
			w.credit--
			w.mu.Unlock()
			data, done, ok := w.opts.Producer()
			if !ok {
				w.mu.Lock()
				w.credit++
				w.mu.Unlock()
				return
			}
			wire, byteLen := w.codec.EncodeChunk(data)
			w.mu.Lock()
			w.seq++
			chunk = queuedChunk{seq: w.seq, wire: wire, byteLen: byteLen, done: done}
			haveChunk = true
			w.mu.Unlock()
		} else {
			w.mu.Unlock()
			return
		}

		if !haveChunk {
			return
		}

		w.resetIdleTimer()
		ok := w.sendChunk(chunk)
		if !ok {
			w.failWithCode(bhcore.CodeTargetWindowClosed, "stream_data send failed")
			return
		}
		if chunk.done {
			if w.fsm.transitionTerminal(StateEnded, nil) {
				w.cleanup()
			}
			return
		}
	}
}

func (w *Writer) sendChunk(chunk queuedChunk) bool {
	b := w.binding
	var ack *bhcore.AckRef
	if chunk.requireAck {
		ack = &bhcore.AckRef{ID: chunk.ackID}
	}
	return b.Dispatcher.Send(bhcore.TypeStreamData, b.RequestID, bhcore.Envelope{
		Role:       b.Role,
		CreatorID:  b.CreatorID,
		TargetID:   b.TargetID,
		RequireAck: chunk.requireAck,
		Ack:        ack,
		Body: bhcore.StreamDataBody{
			StreamID: w.opts.StreamID,
			Data:     chunk.wire,
			Done:     chunk.done,
			Seq:      chunk.seq,
		},
	})
}

func (w *Writer) onExpire() {
	if w.fsm.State() == StatePending {
		w.failWithCode(bhcore.CodeStreamStartTimeout, "expire timer fired before streaming began")
		return
	}
	w.failWithCode(bhcore.CodeStreamError, "expire timer fired while streaming")
}

func (w *Writer) resetIdleTimer() {
	if w.opts.IdleTimeout <= 0 {
		return
	}
	w.mu.Lock()
	if w.idleTimer != nil {
		w.idleTimer.Stop()
	}
	w.idleTimer = time.AfterFunc(w.opts.IdleTimeout, w.onIdle)
	w.mu.Unlock()
}

func (w *Writer) onIdle() {
	if w.fsm.State() != StateStreaming {
		return
	}
	b := w.binding
	if b != nil && b.Heartbeat != nil {
		pingTimeout := w.opts.IdleTimeout / 2
		if pingTimeout <= 0 {
			pingTimeout = time.Second
		}
		if b.Heartbeat.Ping(pingTimeout) {
			w.resetIdleTimer()
			return
		}
	}
	w.failWithCode(bhcore.CodeStreamError, "idle timeout: peer did not respond to heartbeat")
}

func (w *Writer) failWithCode(code bhcore.Code, msg string) {
	if !w.fsm.transitionTerminal(StateError, bhcore.NewError(code, msg)) {
		return
	}
	if b := w.binding; b != nil {
		b.Dispatcher.Send(bhcore.TypeStreamError, b.RequestID, bhcore.Envelope{
			Body: bhcore.StreamErrorBody{StreamID: w.opts.StreamID, Error: &bhcore.ErrorPayload{Message: msg, Code: string(code)}},
		})
	}
	w.cleanup()
}

func (w *Writer) cleanup() {
	w.mu.Lock()
	if w.expireTimer != nil {
		w.expireTimer.Stop()
	}
	if w.idleTimer != nil {
		w.idleTimer.Stop()
	}
	waiters := w.ackWaiters
	w.ackWaiters = make(map[string]chan bool)
	w.queue = nil
	w.mu.Unlock()

	for _, ch := range waiters {
		ch <- false
	}
	if b := w.binding; b != nil {
		b.Registry.unregisterWriter(w.opts.StreamID)
	}
}
