// Package serverrole implements the response path (spec §4.9): an
// inbound "request" envelope runs an immediate ack, a per-client
// concurrency cap, the middleware chain, and route dispatch into a
// handler that must call exactly one response method — plus §4.10's
// path routing and prefix-scoped middleware built on top of the
// generic router.
package serverrole

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/heartbeat"
	"github.com/bridgehub/bridgehub/internal/hub"
	"github.com/bridgehub/bridgehub/internal/pending"
	"github.com/bridgehub/bridgehub/internal/routing"
	"github.com/bridgehub/bridgehub/internal/streaming"
)

const bucketServerAck = "server-ack"

// Server is the server-role endpoint: it answers inbound requests over
// a Hub, routing them through a prefix-scoped middleware chain into
// path handlers (§4.9, §4.10).
type Server struct {
	Hub       *hub.Hub
	Streams   *streaming.Registry
	Heartbeat *heartbeat.Heartbeat

	DefaultAckTimeout      time.Duration
	MaxConcurrentPerClient int

	router *routing.Router[*ctx]

	mu            sync.Mutex
	inflight      map[string]int
	ackChans      map[string]chan bool
	pendingBodies map[string]*pendingBody
	bodyWaiters   map[string]chan *pendingBody
}

// streamArrivalGrace bounds how long onRequest waits for a stream_start
// that a content-type/content-disposition header promised, covering the
// case where it is delivered (on its own postMessage-style goroutine)
// after the request envelope that logically follows it.
const streamArrivalGrace = 2 * time.Second

func expectsStreamedBody(headers map[string]string) bool {
	if _, ok := headers["content-disposition"]; ok {
		return true
	}
	return headers["content-type"] == "application/octet-stream"
}

type pendingBody struct {
	reader      *streaming.Reader
	autoResolve bool
	ready       chan struct{}
	resolved    any
	err         error
}

// New builds a Server around hub, using hb for idle-stream liveness
// checks.
func New(h *hub.Hub, hb *heartbeat.Heartbeat) *Server {
	s := &Server{
		Hub:               h,
		Streams:           streaming.NewRegistry(),
		Heartbeat:         hb,
		DefaultAckTimeout: time.Second,
		router:            routing.New[*ctx](),
		inflight:          make(map[string]int),
		ackChans:          make(map[string]chan bool),
		pendingBodies:     make(map[string]*pendingBody),
		bodyWaiters:       make(map[string]chan *pendingBody),
	}
	s.Streams.Wire(h.Dispatcher)
	h.Dispatcher.OnType(bhcore.TypeRequest, s.onRequest)
	h.Dispatcher.OnType(bhcore.TypeAck, s.onAck)
	h.Dispatcher.OnType(bhcore.TypeStreamStart, s.onStreamStart)
	h.OnDestroy.On(func(struct{}) { s.drainAll() })
	return s
}

// drainAll resolves every outstanding ack waiter false, the way a
// closed endpoint can no longer expect any ack to arrive (§5).
func (s *Server) drainAll() {
	s.Hub.Pending.DrainBucket(bucketServerAck, func(op *pending.Op) {})

	s.mu.Lock()
	chans := s.ackChans
	s.ackChans = make(map[string]chan bool)
	s.mu.Unlock()
	for _, ch := range chans {
		ch <- false
		close(ch)
	}
}

// Handle registers a synchronous handler for pattern (§4.10). h must
// call exactly one ServerResponse method before returning; if it
// returns without doing so, the server emits a NO_RESPONSE error.
func (s *Server) Handle(pattern string, h Handler) {
	s.router.Handle(pattern, func(c *ctx, params map[string]string) {
		c.req.Params = params
		s.runGuarded(c, func() { h(c.req, c.res) })
		s.checkResponded(c)
	})
}

// HandleAsync registers a handler whose work continues past the
// initial dispatch (§4.9 step 6). The server emits the "async" envelope
// immediately, then runs h in its own goroutine; h must still call
// exactly one response method, checked once it returns.
func (s *Server) HandleAsync(pattern string, h AsyncHandler) {
	s.router.Handle(pattern, func(c *ctx, params map[string]string) {
		c.req.Params = params
		s.Hub.Dispatcher.Send(bhcore.TypeAsync, c.req.RequestID, bhcore.Envelope{
			Role: bhcore.RoleServer, TargetID: c.req.CreatorID,
		})
		go func() {
			s.runGuarded(c, func() { h(c.req, c.res) })
			s.checkResponded(c)
		}()
	})
}

// Use registers middleware under prefix (§4.10). An empty prefix runs
// for every path.
func (s *Server) Use(prefix string, mw Middleware) {
	s.router.Use(prefix, func(c *ctx, params map[string]string, next func()) {
		c.req.Params = params
		s.runGuarded(c, func() { mw(c.req, c.res, next) })
	})
}

// runGuarded recovers a panic from fn into a 500 error response, the
// way a synchronous handler throw is translated on the wire (§4.9 step
// 7).
func (s *Server) runGuarded(c *ctx, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.res.sendError(500, "Internal Server Error", fmt.Sprintf("%v", rec), bhcore.CodeRequestError)
		}
	}()
	fn()
}

func (s *Server) checkResponded(c *ctx) {
	if !c.res.Sent() {
		c.res.sendError(502, "No Response", "handler returned without sending a response", bhcore.CodeNoResponse)
	}
}

func (s *Server) onRequest(env bhcore.Envelope, sourceOrigin string) bool {
	if s.MaxConcurrentPerClient > 0 && !s.tryAcquire(env.CreatorID) {
		s.sendErrorEnvelope(env.RequestID, env.CreatorID, 429, "Too Many Requests",
			"too many concurrent requests from this client", bhcore.CodeTooManyRequests)
		return true
	}

	s.Hub.Dispatcher.Send(bhcore.TypeAck, env.RequestID, bhcore.Envelope{
		Role: bhcore.RoleServer, TargetID: env.CreatorID,
	})

	req := &ServerRequest{
		RequestID: env.RequestID,
		Path:      env.Path,
		Body:      env.Body,
		Headers:   env.Headers,
		Cookies:   env.Cookies,
		Origin:    sourceOrigin,
		CreatorID: env.CreatorID,
	}

	var pb *pendingBody
	if expectsStreamedBody(env.Headers) {
		pb = s.awaitPendingBody(env.RequestID)
	} else {
		pb = s.takePendingBody(env.RequestID)
	}
	if pb != nil {
		<-pb.ready
		if pb.autoResolve {
			if pb.err != nil {
				s.sendErrorEnvelope(env.RequestID, env.CreatorID, 400, "Bad Request", pb.err.Error(), bhcore.CodeStreamError)
				s.release(env.CreatorID)
				return true
			}
			req.Body = pb.resolved
		} else {
			req.Stream = pb.reader
		}
	}

	res := newResponse(s, req)
	c := &ctx{req: req, res: res}

	found := s.router.Dispatch(c, env.Path)
	if !found {
		if !res.Sent() {
			res.sendError(404, "Not Found", fmt.Sprintf("no route for %s", env.Path), bhcore.CodeMethodNotFound)
		}
		return true
	}
	return true
}

func (s *Server) onStreamStart(env bhcore.Envelope, _ string) bool {
	body, ok := env.Body.(bhcore.StreamStartBody)
	if !ok {
		return false
	}
	var codec streaming.ChunkCodec = streaming.DataCodec{}
	if body.Type == "file" {
		codec = streaming.FileCodec{}
	}
	reader := streaming.NewReader(body.StreamID, codec, streaming.ReaderOptions{}, streaming.Binding{
		RequestID: env.RequestID, Role: bhcore.RoleServer, Dispatcher: s.Hub.Dispatcher, Registry: s.Streams, Heartbeat: s.Heartbeat,
	})

	pb := &pendingBody{reader: reader, autoResolve: body.AutoResolve, ready: make(chan struct{})}
	if !body.AutoResolve {
		close(pb.ready)
	} else {
		go func() {
			merged, err := reader.Read(context.Background())
			pb.resolved, pb.err = merged, err
			close(pb.ready)
		}()
	}
	s.mu.Lock()
	waiter, waiting := s.bodyWaiters[env.RequestID]
	if waiting {
		delete(s.bodyWaiters, env.RequestID)
	} else {
		s.pendingBodies[env.RequestID] = pb
	}
	s.mu.Unlock()
	if waiting {
		waiter <- pb
	}
	return true
}

func (s *Server) takePendingBody(requestID string) *pendingBody {
	s.mu.Lock()
	defer s.mu.Unlock()
	pb, ok := s.pendingBodies[requestID]
	if !ok {
		return nil
	}
	delete(s.pendingBodies, requestID)
	return pb
}

// awaitPendingBody is takePendingBody's counterpart for a request whose
// headers promise a streamed body: if stream_start hasn't arrived yet,
// it registers a waiter onStreamStart will hand the pendingBody to
// directly, bounded by streamArrivalGrace.
func (s *Server) awaitPendingBody(requestID string) *pendingBody {
	s.mu.Lock()
	if pb, ok := s.pendingBodies[requestID]; ok {
		delete(s.pendingBodies, requestID)
		s.mu.Unlock()
		return pb
	}
	waiter := make(chan *pendingBody, 1)
	s.bodyWaiters[requestID] = waiter
	s.mu.Unlock()

	select {
	case pb := <-waiter:
		return pb
	case <-time.After(streamArrivalGrace):
		s.mu.Lock()
		delete(s.bodyWaiters, requestID)
		s.mu.Unlock()
		return nil
	}
}

func (s *Server) onAck(env bhcore.Envelope, _ string) bool {
	if s.Streams.HandleAck(env) {
		return true
	}
	if env.Ack == nil {
		return false
	}
	if _, ok := s.Hub.Pending.Delete(bucketServerAck, env.Ack.ID); !ok {
		return false
	}
	s.resolveAckWaiter(env.Ack.ID, true)
	return true
}

// sendWithOptionalAck sends fields as typ and, when opts.RequireAck is
// set, blocks the returned channel on the matching ack (or its
// timeout); otherwise the channel reports the immediate send outcome.
func (s *Server) sendWithOptionalAck(typ bhcore.Type, requestID string, fields bhcore.Envelope, opts ReplyOptions) <-chan bool {
	if !opts.RequireAck {
		return closedChan(s.Hub.Dispatcher.Send(typ, requestID, fields))
	}

	ackID := requestID + ":" + string(typ)
	ch := make(chan bool, 1)
	s.mu.Lock()
	s.ackChans[ackID] = ch
	s.mu.Unlock()

	fields.RequireAck = true
	fields.Ack = &bhcore.AckRef{ID: ackID}

	timeout := opts.AckTimeout
	if timeout <= 0 {
		timeout = s.DefaultAckTimeout
	}
	s.Hub.Pending.Set(bucketServerAck, ackID, &pending.Op{
		Continuation: func(timedOut bool) {
			if timedOut {
				s.resolveAckWaiter(ackID, false)
			}
		},
	}, timeout)

	if ok := s.Hub.Dispatcher.Send(typ, requestID, fields); !ok {
		s.Hub.Pending.Delete(bucketServerAck, ackID)
		s.resolveAckWaiter(ackID, false)
	}
	return ch
}

func (s *Server) resolveAckWaiter(ackID string, ok bool) {
	s.mu.Lock()
	ch, found := s.ackChans[ackID]
	if found {
		delete(s.ackChans, ackID)
	}
	s.mu.Unlock()
	if found {
		ch <- ok
		close(ch)
	}
}

func (s *Server) sendErrorEnvelope(requestID, targetID string, status int, statusText, message string, code bhcore.Code) bool {
	return s.Hub.Dispatcher.Send(bhcore.TypeError, requestID, bhcore.Envelope{
		Role: bhcore.RoleServer, TargetID: targetID, Status: status, StatusText: statusText,
		Error: &bhcore.ErrorPayload{Message: message, Code: string(code)},
	})
}

func (s *Server) tryAcquire(creatorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[creatorID] >= s.MaxConcurrentPerClient {
		return false
	}
	s.inflight[creatorID]++
	return true
}

func (s *Server) release(creatorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[creatorID] > 0 {
		s.inflight[creatorID]--
	}
}
