package serverrole

import (
	"sync"

	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/cookiejar"
	"github.com/bridgehub/bridgehub/internal/streaming"
)

// ServerResponse is the at-most-once response sink a handler and its
// middleware share for one request (§4.9's res). Exactly one of
// Send/Json/SendFile/SendStream may succeed; later calls are no-ops
// reporting failure on their returned channel.
type ServerResponse struct {
	server *Server
	req    *ServerRequest

	mu           sync.Mutex
	sentFlag     bool
	statusCode   int
	statusText   string
	headers      map[string]string
	cookiesToSet []string
}

func newResponse(s *Server, req *ServerRequest) *ServerResponse {
	return &ServerResponse{server: s, req: req, statusCode: 200, headers: make(map[string]string)}
}

// Sent reports whether a response method has already been called —
// routing.ResponseState's contract, and what lets the middleware chain
// and NO_RESPONSE detection short-circuit.
func (r *ServerResponse) Sent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sentFlag
}

// trySend claims the at-most-once slot, returning false if a response
// method already ran.
func (r *ServerResponse) trySend() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sentFlag {
		return false
	}
	r.sentFlag = true
	return true
}

// Status sets the response status code (default 200 if never called).
func (r *ServerResponse) Status(code int) *ServerResponse {
	r.mu.Lock()
	r.statusCode = code
	r.mu.Unlock()
	return r
}

// StatusText sets the response status text.
func (r *ServerResponse) StatusText(text string) *ServerResponse {
	r.mu.Lock()
	r.statusText = text
	r.mu.Unlock()
	return r
}

// SetHeader sets a single response header, overwriting any prior value
// for that name (the "set-cookie" name is reserved for Cookie/ClearCookie
// — setting it here is overwritten by any Cookie call).
func (r *ServerResponse) SetHeader(name, value string) *ServerResponse {
	r.mu.Lock()
	r.headers[name] = value
	r.mu.Unlock()
	return r
}

// Cookie schedules a Set-Cookie for this response (§4.9's res.cookie).
func (r *ServerResponse) Cookie(name, value string, opts cookiejar.Options) *ServerResponse {
	r.mu.Lock()
	r.cookiesToSet = append(r.cookiesToSet, cookiejar.SerializeSetCookie(cookiejar.Cookie{
		Name: name, Value: value, Path: opts.Path, MaxAge: opts.MaxAge, Secure: opts.Secure, HTTPOnly: opts.HTTPOnly, SameSite: opts.SameSite,
	}))
	r.mu.Unlock()
	return r
}

// ClearCookie schedules removal of a cookie at path (default "/") by
// emitting an empty-value Set-Cookie, matching the jar's ApplySetCookie
// clear convention on the receiving side.
func (r *ServerResponse) ClearCookie(name, path string) *ServerResponse {
	return r.Cookie(name, "", cookiejar.Options{Path: path})
}

func (r *ServerResponse) buildHeaders() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.headers)+1)
	for k, v := range r.headers {
		out[k] = v
	}
	if len(r.cookiesToSet) > 0 {
		out["set-cookie"] = cookiejar.SerializeSetCookieHeader(r.cookiesToSet)
	}
	return out
}

// Send emits a "response" envelope carrying data as the body (§4.9 step
// 6). The returned channel reports an ack when opts.RequireAck is set
// (true if the ack arrived in time, false on timeout or send failure);
// without RequireAck it reports the immediate send outcome.
func (r *ServerResponse) Send(data any, opts ReplyOptions) <-chan bool {
	if !r.trySend() {
		return closedChan(false)
	}
	defer r.server.release(r.req.CreatorID)

	fields := bhcore.Envelope{
		Role:       bhcore.RoleServer,
		TargetID:   r.req.CreatorID,
		Status:     r.statusOrDefault(),
		StatusText: r.statusTextValue(),
		Headers:    r.buildHeaders(),
		Body:       data,
	}
	return r.server.sendWithOptionalAck(bhcore.TypeResponse, r.req.RequestID, fields, opts)
}

// sendError claims the at-most-once slot and emits an "error" envelope
// instead of a response — used for 404/500/502 cases the server
// itself generates around a handler rather than the handler's own
// reply. Returns false if a response was already sent.
func (r *ServerResponse) sendError(status int, statusText, message string, code bhcore.Code) bool {
	if !r.trySend() {
		return false
	}
	defer r.server.release(r.req.CreatorID)
	return r.server.sendErrorEnvelope(r.req.RequestID, r.req.CreatorID, status, statusText, message, code)
}

// Json is an alias for Send — every body on this wire is already a
// structured Go value, not a pre-serialized string, so there is no
// separate encoding step to perform here.
func (r *ServerResponse) Json(v any, opts ReplyOptions) <-chan bool {
	return r.Send(v, opts)
}

// SendFile streams content back as the response body (§4.9's sendFile):
// a stream_start under this requestId followed by the file's bytes.
func (r *ServerResponse) SendFile(content []byte, meta FileMeta, opts ReplyOptions) <-chan bool {
	if !r.trySend() {
		return closedChan(false)
	}
	defer r.server.release(r.req.CreatorID)

	writer := streaming.NewWriter(streaming.WriterOptions{
		Kind: "file", Mode: "push", AutoResolve: opts.AutoResolve,
		Metadata: meta,
	}, streaming.FileCodec{})
	if err := writer.Bind(streaming.Binding{
		RequestID: r.req.RequestID, Role: bhcore.RoleServer, TargetID: r.req.CreatorID,
		Dispatcher: r.server.Hub.Dispatcher, Registry: r.server.Streams, Heartbeat: r.server.Heartbeat,
	}); err != nil {
		return closedChan(false)
	}
	if err := writer.Start(); err != nil {
		return closedChan(false)
	}
	if _, err := writer.Write(content, streaming.WriteOptions{Done: true}); err != nil {
		writer.Cancel(err.Error())
		return closedChan(false)
	}
	return closedChan(true)
}

// SendStream streams a producer-driven body back as the response
// (§4.9's sendStream): the caller owns producing chunks, bridgehub owns
// credit and delivery.
func (r *ServerResponse) SendStream(producer streaming.Producer, opts ReplyOptions) <-chan bool {
	if !r.trySend() {
		return closedChan(false)
	}
	defer r.server.release(r.req.CreatorID)

	writer := streaming.NewWriter(streaming.WriterOptions{
		Kind: "data", Mode: "pull", Producer: producer,
	}, streaming.DataCodec{})
	if err := writer.Bind(streaming.Binding{
		RequestID: r.req.RequestID, Role: bhcore.RoleServer, TargetID: r.req.CreatorID,
		Dispatcher: r.server.Hub.Dispatcher, Registry: r.server.Streams, Heartbeat: r.server.Heartbeat,
	}); err != nil {
		return closedChan(false)
	}
	if err := writer.Start(); err != nil {
		return closedChan(false)
	}
	return closedChan(true)
}

func (r *ServerResponse) statusOrDefault() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statusCode == 0 {
		return 200
	}
	return r.statusCode
}

func (r *ServerResponse) statusTextValue() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusText
}

func closedChan(v bool) <-chan bool {
	ch := make(chan bool, 1)
	ch <- v
	close(ch)
	return ch
}
