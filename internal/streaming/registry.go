package streaming

import (
	"strings"
	"sync"

	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/dispatch"
)

// Registry demuxes the stream control types (stream_pull, stream_cancel,
// stream_data, stream_end, stream_error) arriving on one dispatcher to
// the particular Writer or Reader instance they belong to, keyed by
// streamId. One Registry is wired per endpoint (client or server); every
// Writer and Reader created on that endpoint registers into it.
//
// Per-frame stream_data acks ride the ordinary "ack" envelope (the
// dispatcher's auto-ack reply to a claimed, requireAck envelope), with
// ack.id of the form "<streamId>:<seq>". Because TypeAck is also used to
// correlate plain request/response acks, the role layer composes
// HandleAck into its own TypeAck handler rather than the Registry owning
// TypeAck outright.
type Registry struct {
	mu      sync.Mutex
	writers map[string]*Writer
	readers map[string]*Reader
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{writers: make(map[string]*Writer), readers: make(map[string]*Reader)}
}

// Wire installs the registry's demuxing handlers on d. Call once per
// dispatcher.
func (r *Registry) Wire(d *dispatch.Dispatcher) {
	d.OnType(bhcore.TypeStreamPull, r.onPull)
	d.OnType(bhcore.TypeStreamCancel, r.onCancel)
	d.OnType(bhcore.TypeStreamData, r.onData)
	d.OnType(bhcore.TypeStreamEnd, r.onEnd)
	d.OnType(bhcore.TypeStreamError, r.onStreamError)
}

func (r *Registry) registerWriter(id string, w *Writer) {
	r.mu.Lock()
	r.writers[id] = w
	r.mu.Unlock()
}

func (r *Registry) unregisterWriter(id string) {
	r.mu.Lock()
	delete(r.writers, id)
	r.mu.Unlock()
}

func (r *Registry) registerReader(id string, rd *Reader) {
	r.mu.Lock()
	r.readers[id] = rd
	r.mu.Unlock()
}

func (r *Registry) unregisterReader(id string) {
	r.mu.Lock()
	delete(r.readers, id)
	r.mu.Unlock()
}

func (r *Registry) writer(id string) *Writer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writers[id]
}

func (r *Registry) reader(id string) *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readers[id]
}

func (r *Registry) onPull(env bhcore.Envelope, _ string) bool {
	body, ok := env.Body.(bhcore.StreamPullBody)
	if !ok {
		return false
	}
	w := r.writer(body.StreamID)
	if w == nil {
		return false
	}
	w.grantCredit(body.Credit)
	return true
}

func (r *Registry) onCancel(env bhcore.Envelope, _ string) bool {
	body, ok := env.Body.(bhcore.StreamCancelBody)
	if !ok {
		return false
	}
	claimed := false
	if w := r.writer(body.StreamID); w != nil {
		w.remoteCancel(body.Reason)
		claimed = true
	}
	if rd := r.reader(body.StreamID); rd != nil {
		rd.remoteCancel(body.Reason)
		claimed = true
	}
	return claimed
}

func (r *Registry) onData(env bhcore.Envelope, _ string) bool {
	body, ok := env.Body.(bhcore.StreamDataBody)
	if !ok {
		return false
	}
	rd := r.reader(body.StreamID)
	if rd == nil {
		return false
	}
	rd.handleData(body)
	return true
}

func (r *Registry) onEnd(env bhcore.Envelope, _ string) bool {
	body, ok := env.Body.(bhcore.StreamEndBody)
	if !ok {
		return false
	}
	rd := r.reader(body.StreamID)
	if rd == nil {
		return false
	}
	rd.handleEnd()
	return true
}

func (r *Registry) onStreamError(env bhcore.Envelope, _ string) bool {
	body, ok := env.Body.(bhcore.StreamErrorBody)
	if !ok {
		return false
	}
	rd := r.reader(body.StreamID)
	if rd == nil {
		return false
	}
	rd.handleStreamError(body)
	return true
}

// HandleAck resolves a per-frame stream_data ack if env.Ack.ID names a
// stream this registry knows a writer for. Returns false (unclaimed) for
// every other shape of "ack" envelope, so the role layer's own
// request/response ack correlation can have a turn.
func (r *Registry) HandleAck(env bhcore.Envelope) bool {
	if env.Ack == nil || env.Ack.ID == "" {
		return false
	}
	streamID, _, found := strings.Cut(env.Ack.ID, ":")
	if !found {
		return false
	}
	w := r.writer(streamID)
	if w == nil {
		return false
	}
	return w.resolveAck(env.Ack.ID, true)
}
