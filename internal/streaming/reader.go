package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/bridgehub/bridgehub/internal/bhcore"
)

const defaultHighWaterMark = 16
const compactionThreshold = 128

// ReaderOptions configures a new Reader (§4.7.3).
type ReaderOptions struct {
	// HighWaterMark caps how many decoded chunks the reader keeps
	// buffered ahead of consumption before it stops granting new credit.
	// Defaults to 16.
	HighWaterMark int
	IdleTimeout   time.Duration
}

// Reader is the consumer side of a stream (§4.7.3). It grants credit to
// the writer via stream_pull frames — an initial credit of 1 on
// construction, then coalesced top-ups as the buffer drains below the
// high-water mark — and exposes the buffered chunks through Next,
// ReadAll, and Read (merged).
type Reader struct {
	streamID string
	codec    ChunkCodec
	opts     ReaderOptions
	binding  Binding
	fsm      *fsm

	mu        sync.Mutex
	buf       []any
	head      int
	granted   int // credit sent but not yet consumed by an arriving chunk
	pulling   bool
	activity  chan struct{}
	idleTimer *time.Timer
}

// NewReader builds a Reader bound to b, registers it into b.Registry,
// and sends the initial stream_pull with credit 1.
func NewReader(streamID string, codec ChunkCodec, opts ReaderOptions, b Binding) *Reader {
	if opts.HighWaterMark <= 0 {
		opts.HighWaterMark = defaultHighWaterMark
	}
	r := &Reader{
		streamID: streamID,
		codec:    codec,
		opts:     opts,
		binding:  b,
		fsm:      newFSM(),
		activity: make(chan struct{}),
	}
	b.Registry.registerReader(streamID, r)
	r.granted = 1
	b.Dispatcher.Send(bhcore.TypeStreamPull, b.RequestID, bhcore.Envelope{
		Role:      b.Role,
		CreatorID: b.CreatorID,
		TargetID:  b.TargetID,
		Body:      bhcore.StreamPullBody{StreamID: streamID, Credit: 1},
	})
	if opts.IdleTimeout > 0 {
		r.resetIdleTimer()
	}
	return r
}

// StreamID returns the reader's stream id.
func (r *Reader) StreamID() string { return r.streamID }

// State returns the reader's current lifecycle state.
func (r *Reader) State() State { return r.fsm.State() }

func (r *Reader) wake() {
	r.mu.Lock()
	old := r.activity
	r.activity = make(chan struct{})
	r.mu.Unlock()
	close(old)
}

// Next blocks until a chunk is available, the stream ends, or ctx is
// done. done is true once the stream has cleanly ended and no chunk is
// returned; err is non-nil if the stream ended in error or was
// cancelled, or if ctx expired first.
func (r *Reader) Next(ctx context.Context) (chunk any, done bool, err error) {
	for {
		r.mu.Lock()
		if r.head < len(r.buf) {
			v := r.buf[r.head]
			r.head++
			if r.head > compactionThreshold {
				r.buf = append([]any{}, r.buf[r.head:]...)
				r.head = 0
			}
			r.mu.Unlock()
			r.maybeTopUp()
			return v, false, nil
		}
		state := r.fsm.State()
		if state.IsTerminal() {
			ferr := r.fsm.Err()
			r.mu.Unlock()
			d, e := asError(state, ferr)
			return nil, d, e
		}
		waitCh := r.activity
		r.mu.Unlock()

		select {
		case <-waitCh:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// ReadAll drains the stream into a slice of decoded chunks.
func (r *Reader) ReadAll(ctx context.Context) ([]any, error) {
	var out []any
	for {
		chunk, done, err := r.Next(ctx)
		if err != nil {
			return out, err
		}
		if done {
			return out, nil
		}
		out = append(out, chunk)
	}
}

// Read drains the stream and merges every chunk into the single value
// the codec defines — the whole file, or the whole data payload.
func (r *Reader) Read(ctx context.Context) (any, error) {
	chunks, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return r.codec.MergeChunks(chunks)
}

// Cancel transitions the stream to cancelled and best-effort notifies
// the writer.
func (r *Reader) Cancel(reason string) {
	if !r.fsm.transitionTerminal(StateCancelled, bhcore.NewError(bhcore.CodeStreamCancelled, reason)) {
		return
	}
	r.binding.Dispatcher.Send(bhcore.TypeStreamCancel, r.binding.RequestID, bhcore.Envelope{
		Body: bhcore.StreamCancelBody{StreamID: r.streamID, Reason: reason},
	})
	r.cleanup()
	r.wake()
}

func (r *Reader) remoteCancel(reason string) {
	if !r.fsm.transitionTerminal(StateCancelled, bhcore.NewError(bhcore.CodeStreamCancelled, reason)) {
		return
	}
	r.cleanup()
	r.wake()
}

func (r *Reader) handleData(body bhcore.StreamDataBody) {
	// A nil Data with Done set is the bare terminal marker a push-mode
	// Writer.End() enqueues when its queue is already empty — a
	// close signal, not a chunk — so it's decoded and buffered only
	// when it actually carries data.
	var decoded any
	var hasChunk bool
	if body.Data != nil {
		var err error
		decoded, err = r.codec.DecodeChunk(body.Data)
		if err != nil {
			r.failWithCode(bhcore.CodeStreamError, "chunk decode failed: "+err.Error())
			return
		}
		hasChunk = true
	}
	r.fsm.markStreaming()
	r.mu.Lock()
	if hasChunk {
		r.buf = append(r.buf, decoded)
	}
	if r.granted > 0 {
		r.granted--
	}
	r.mu.Unlock()
	r.resetIdleTimer()

	if body.Done {
		r.fsm.transitionTerminal(StateEnded, nil)
		r.cleanup()
	}
	r.wake()
	if !body.Done {
		r.maybeTopUp()
	}
}

func (r *Reader) handleEnd() {
	if r.fsm.transitionTerminal(StateEnded, nil) {
		r.cleanup()
	}
	r.wake()
}

func (r *Reader) handleStreamError(body bhcore.StreamErrorBody) {
	msg := "stream error"
	code := bhcore.CodeStreamError
	if body.Error != nil {
		msg = body.Error.Message
		if body.Error.Code != "" {
			code = bhcore.Code(body.Error.Code)
		}
	}
	r.failWithCode(code, msg)
}

func (r *Reader) failWithCode(code bhcore.Code, msg string) {
	if r.fsm.transitionTerminal(StateError, bhcore.NewError(code, msg)) {
		r.cleanup()
	}
	r.wake()
}

// maybeTopUp sends a single coalesced stream_pull once the buffer has
// drained below the high-water mark, rather than one pull per consumed
// chunk.
func (r *Reader) maybeTopUp() {
	r.mu.Lock()
	if r.pulling || r.fsm.State().IsTerminal() {
		r.mu.Unlock()
		return
	}
	outstanding := (len(r.buf) - r.head) + r.granted
	missing := r.opts.HighWaterMark - outstanding
	if missing <= 0 {
		r.mu.Unlock()
		return
	}
	r.pulling = true
	r.mu.Unlock()

	go func() {
		r.mu.Lock()
		r.granted += missing
		r.pulling = false
		r.mu.Unlock()
		r.binding.Dispatcher.Send(bhcore.TypeStreamPull, r.binding.RequestID, bhcore.Envelope{
			Role:      r.binding.Role,
			CreatorID: r.binding.CreatorID,
			TargetID:  r.binding.TargetID,
			Body:      bhcore.StreamPullBody{StreamID: r.streamID, Credit: missing},
		})
	}()
}

func (r *Reader) resetIdleTimer() {
	if r.opts.IdleTimeout <= 0 {
		return
	}
	r.mu.Lock()
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.idleTimer = time.AfterFunc(r.opts.IdleTimeout, r.onIdle)
	r.mu.Unlock()
}

func (r *Reader) onIdle() {
	if r.fsm.State().IsTerminal() {
		return
	}
	if r.binding.Heartbeat != nil {
		pingTimeout := r.opts.IdleTimeout / 2
		if pingTimeout <= 0 {
			pingTimeout = time.Second
		}
		if r.binding.Heartbeat.Ping(pingTimeout) {
			r.resetIdleTimer()
			return
		}
	}
	r.failWithCode(bhcore.CodeStreamError, "idle timeout: writer did not respond to heartbeat")
}

func (r *Reader) cleanup() {
	r.mu.Lock()
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.mu.Unlock()
	r.binding.Registry.unregisterReader(r.streamID)
}
