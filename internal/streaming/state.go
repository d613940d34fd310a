// Package streaming implements the credit-based stream engine (spec
// §4.7): a shared pending/streaming/terminal state machine, a writer
// (producer) side and a reader (consumer) side, both driven by the same
// backpressure credit protocol, plus the small ChunkCodec capability set
// that replaces the source system's prototype-chain subclassing for the
// data/file stream variants (§9 design notes).
package streaming

import (
	"sync"

	"github.com/bridgehub/bridgehub/internal/bhcore"
)

// State is one of the stream lifecycle states (§4.7.1).
type State int

const (
	StatePending State = iota
	StateStreaming
	StateEnded
	StateError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the three terminal states.
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateError || s == StateCancelled
}

// fsm is the shared state machine backing both Writer and Reader. All
// transitions are idempotent — a second attempt at a terminal
// transition is a no-op (§4.7.1) — and a terminal transition notifies
// every current and future waiter on done exactly once, by closing it.
type fsm struct {
	mu    sync.Mutex
	state State
	err   error // set on StateError or StateCancelled
	done  chan struct{}
}

func newFSM() *fsm {
	return &fsm{state: StatePending, done: make(chan struct{})}
}

// markStreaming transitions pending -> streaming. No-op (returns false)
// if already past pending.
func (f *fsm) markStreaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StatePending {
		return false
	}
	f.state = StateStreaming
	return true
}

// transitionTerminal moves to one of the terminal states, recording err
// (nil for a clean StateEnded). Returns false if the state was already
// terminal — the one-shot guarantee every terminal transition needs.
func (f *fsm) transitionTerminal(target State, err error) bool {
	if !target.IsTerminal() {
		panic("streaming: transitionTerminal called with a non-terminal state")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.IsTerminal() {
		return false
	}
	f.state = target
	f.err = err
	close(f.done)
	return true
}

// State returns the current state.
func (f *fsm) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns the terminal error, if any (nil on a clean StateEnded or
// while still non-terminal).
func (f *fsm) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Done returns a channel closed exactly once, at the terminal
// transition.
func (f *fsm) Done() <-chan struct{} {
	return f.done
}

// asError converts a terminal fsm error into the (done, err) shape
// callers want: done=true with err=nil for a clean end, done=false with
// the wrapped error otherwise.
func asError(state State, err error) (done bool, outErr error) {
	if state == StateEnded {
		return true, nil
	}
	if err == nil {
		err = bhcore.NewError(bhcore.CodeStreamError, "stream ended abnormally")
	}
	return false, err
}
