package serverrole

import (
	"time"

	"github.com/bridgehub/bridgehub/internal/streaming"
)

// ServerRequest is what a route handler and middleware see for one
// inbound request (§4.9 step 3).
type ServerRequest struct {
	RequestID string
	Path      string
	Params    map[string]string
	Body      any
	Headers   map[string]string
	Cookies   map[string]string
	Origin    string
	CreatorID string

	// Stream is non-nil when the request body arrived as a stream whose
	// autoResolve flag was false — the handler reads it directly instead
	// of finding the merged value in Body.
	Stream *streaming.Reader
}

// FileMeta describes a file response for ServerResponse.SendFile
// (§4.9's sendFile).
type FileMeta struct {
	FileName string
	MimeType string
}

// ReplyOptions customizes Send/SendFile/SendStream.
type ReplyOptions struct {
	RequireAck  bool
	AckTimeout  time.Duration
	AutoResolve bool
}

// Handler handles a matched route synchronously: it must call exactly
// one ServerResponse method before returning (§4.9 step 6).
type Handler func(req *ServerRequest, res *ServerResponse)

// AsyncHandler handles a matched route whose work continues past the
// initial dispatch. The server emits the "async" envelope immediately
// on dispatch (the implementation choice §4.9 step 6 allows), runs h in
// its own goroutine, and still requires exactly one response method call
// before it returns.
type AsyncHandler func(req *ServerRequest, res *ServerResponse)

// Middleware runs ahead of route dispatch; it must call next to
// continue the chain (§4.10).
type Middleware func(req *ServerRequest, res *ServerResponse, next func())

// ctx adapts (ServerRequest, ServerResponse) to routing.Router's single
// context-value generic parameter.
type ctx struct {
	req *ServerRequest
	res *ServerResponse
}

func (c *ctx) Sent() bool { return c.res.Sent() }
