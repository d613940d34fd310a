// Package clientrole implements the request path (spec §4.8): send,
// sendFile, sendStream, the phase-tracked pending request lifecycle
// (ack -> response|async -> resolved), the interceptor chains, and
// remembering the target server id from the first ack.
package clientrole

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/cookiejar"
	"github.com/bridgehub/bridgehub/internal/heartbeat"
	"github.com/bridgehub/bridgehub/internal/hub"
	"github.com/bridgehub/bridgehub/internal/interceptor"
	"github.com/bridgehub/bridgehub/internal/pending"
	"github.com/bridgehub/bridgehub/internal/streaming"
)

const (
	bucketAck      = "client-ack"
	bucketResponse = "client-response"
	bucketAsync    = "client-async"
)

// Client is the client-role endpoint: it issues requests over a Hub and
// tracks each through its ack/response/async phases (§4.8).
type Client struct {
	Hub           *hub.Hub
	Jar           *cookiejar.Jar
	Streams       *streaming.Registry
	Heartbeat     *heartbeat.Heartbeat
	RequestChain  *interceptor.Chain[*RequestConfig]
	ResponseChain *interceptor.Chain[*Response]

	DefaultAckTimeout   time.Duration
	DefaultTimeout      time.Duration
	DefaultAsyncTimeout time.Duration

	mu             sync.Mutex
	targetServerID string
	results        map[string]chan result
	callTimeouts   map[string]callTimeouts
}

type result struct {
	response *Response
	err      error
}

// callTimeouts stashes the per-call SendOptions overrides registered
// for a request so onAck/onAsync can apply them once the response and
// async phase timers start, instead of always falling back to the
// client's defaults.
type callTimeouts struct {
	timeout      time.Duration
	asyncTimeout time.Duration
}

// New builds a Client around hub, using jar for cookie persistence and
// hb for idle-stream liveness checks.
func New(h *hub.Hub, jar *cookiejar.Jar, hb *heartbeat.Heartbeat) *Client {
	c := &Client{
		Hub:                 h,
		Jar:                 jar,
		Streams:             streaming.NewRegistry(),
		Heartbeat:           hb,
		RequestChain:        interceptor.New[*RequestConfig](),
		ResponseChain:       interceptor.New[*Response](),
		DefaultAckTimeout:   time.Second,
		DefaultTimeout:      5 * time.Second,
		DefaultAsyncTimeout: 120 * time.Second,
		results:             make(map[string]chan result),
		callTimeouts:        make(map[string]callTimeouts),
	}
	c.Streams.Wire(h.Dispatcher)
	h.Dispatcher.OnType(bhcore.TypeAck, c.onAck)
	h.Dispatcher.OnType(bhcore.TypeAsync, c.onAsync)
	h.Dispatcher.OnType(bhcore.TypeResponse, c.onResponse)
	h.Dispatcher.OnType(bhcore.TypeError, c.onError)
	h.Dispatcher.OnType(bhcore.TypeStreamStart, c.onStreamStart)
	h.OnDestroy.On(func(struct{}) { c.drainAll() })
	return c
}

// Send issues path/body as a request envelope and blocks until a
// response, an error, ctx is done, or every phase timeout has elapsed
// (§4.8).
func (c *Client) Send(ctx context.Context, path string, body any, opts SendOptions) (*Response, error) {
	requestID := bhcore.NewID("req")
	cfg := c.buildConfig(requestID, path, body, opts)

	cfg, err := c.RequestChain.Run(cfg)
	if err != nil {
		return nil, err
	}

	headers := c.resolveHeaders(cfg)
	if _, set := headers["content-type"]; !set {
		if ct := deriveContentType(cfg.Body); ct != "" {
			headers["content-type"] = ct
		}
	}

	ch := c.register(requestID, opts)
	ok := c.Hub.Dispatcher.Send(bhcore.TypeRequest, requestID, bhcore.Envelope{
		Role:      bhcore.RoleClient,
		TargetID:  cfg.TargetID,
		Path:      cfg.Path,
		Body:      cfg.Body,
		Headers:   headers,
		Cookies:   cfg.Cookies,
	})
	if !ok {
		c.fail(requestID, bhcore.NewError(bhcore.CodeTargetWindowClosed, "request send failed"))
	}
	return c.await(ctx, requestID, ch)
}

// SendFile issues a file body as a stream (§4.8.2): the stream_start
// frame establishes the body ahead of the logical request, driven by a
// file writer bound to the same requestId.
func (c *Client) SendFile(ctx context.Context, path string, content []byte, meta FileMeta, opts SendOptions) (*Response, error) {
	requestID := bhcore.NewID("req")
	cfg := c.buildConfig(requestID, path, nil, opts)

	writer := streaming.NewWriter(streaming.WriterOptions{Kind: "file", Mode: "push", AutoResolve: opts.AutoResolve, Metadata: meta}, streaming.FileCodec{})
	if err := writer.Bind(streaming.Binding{
		RequestID: requestID, Role: bhcore.RoleClient, TargetID: cfg.TargetID,
		Dispatcher: c.Hub.Dispatcher, Registry: c.Streams, Heartbeat: c.Heartbeat,
	}); err != nil {
		return nil, err
	}
	if err := writer.Start(); err != nil {
		return nil, err
	}

	headers := c.resolveHeaders(cfg)
	headers["content-type"] = firstNonEmpty(meta.MimeType, "application/octet-stream")
	headers["content-disposition"] = fmt.Sprintf("attachment; filename=%q", meta.FileName)

	ch := c.register(requestID, opts)
	ok := c.Hub.Dispatcher.Send(bhcore.TypeRequest, requestID, bhcore.Envelope{
		Role: bhcore.RoleClient, TargetID: cfg.TargetID, Path: cfg.Path, Headers: headers, Cookies: cfg.Cookies,
	})
	if !ok {
		writer.Cancel("request send failed")
		c.fail(requestID, bhcore.NewError(bhcore.CodeTargetWindowClosed, "request send failed"))
		return c.await(ctx, requestID, ch)
	}
	if _, err := writer.Write(content, streaming.WriteOptions{Done: true}); err != nil {
		writer.Cancel(err.Error())
	}
	return c.await(ctx, requestID, ch)
}

// SendStream issues a generic data body driven by producer (§4.8.2,
// "Stream body: identical shape, with type: 'data'").
func (c *Client) SendStream(ctx context.Context, path string, producer streaming.Producer, opts SendOptions) (*Response, error) {
	requestID := bhcore.NewID("req")
	cfg := c.buildConfig(requestID, path, nil, opts)

	writer := streaming.NewWriter(streaming.WriterOptions{Kind: "data", Mode: "pull", Producer: producer}, streaming.DataCodec{})
	if err := writer.Bind(streaming.Binding{
		RequestID: requestID, Role: bhcore.RoleClient, TargetID: cfg.TargetID,
		Dispatcher: c.Hub.Dispatcher, Registry: c.Streams, Heartbeat: c.Heartbeat,
	}); err != nil {
		return nil, err
	}
	if err := writer.Start(); err != nil {
		return nil, err
	}

	headers := c.resolveHeaders(cfg)
	headers["content-type"] = "application/octet-stream"

	ch := c.register(requestID, opts)
	ok := c.Hub.Dispatcher.Send(bhcore.TypeRequest, requestID, bhcore.Envelope{
		Role: bhcore.RoleClient, TargetID: cfg.TargetID, Path: cfg.Path, Headers: headers, Cookies: cfg.Cookies,
	})
	if !ok {
		writer.Cancel("request send failed")
		c.fail(requestID, bhcore.NewError(bhcore.CodeTargetWindowClosed, "request send failed"))
	}
	return c.await(ctx, requestID, ch)
}

func (c *Client) buildConfig(requestID, path string, body any, opts SendOptions) *RequestConfig {
	c.mu.Lock()
	target := firstNonEmpty(opts.TargetID, c.targetServerID)
	c.mu.Unlock()

	headers := make(map[string]HeaderValue, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	return &RequestConfig{
		Path:      path,
		Body:      body,
		Headers:   headers,
		Cookies:   c.Jar.Merge(path, opts.Cookies),
		RequestID: requestID,
		TargetID:  target,
	}
}

func (c *Client) resolveHeaders(cfg *RequestConfig) map[string]string {
	out := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		switch val := v.(type) {
		case string:
			out[k] = val
		case HeaderFunc:
			out[k] = val(cfg)
		}
	}
	return out
}

// deriveContentType implements §4.8 step 4's body -> content-type rule.
func deriveContentType(body any) string {
	switch body.(type) {
	case nil:
		return ""
	case string:
		return "text/plain"
	case map[string]string:
		return "application/x-www-form-urlencoded"
	default:
		return "application/json"
	}
}

func (c *Client) register(requestID string, opts SendOptions) chan result {
	ch := make(chan result, 1)
	c.mu.Lock()
	c.results[requestID] = ch
	c.callTimeouts[requestID] = callTimeouts{timeout: opts.Timeout, asyncTimeout: opts.AsyncTimeout}
	c.mu.Unlock()

	ackTimeout := firstPositive(opts.AckTimeout, c.DefaultAckTimeout)
	c.Hub.Pending.Set(bucketAck, requestID, &pending.Op{
		Continuation: func(timedOut bool) {
			if timedOut {
				c.fail(requestID, bhcore.NewError(bhcore.CodeAckTimeout, "ack timeout"))
			}
		},
	}, ackTimeout)
	return ch
}

func (c *Client) await(ctx context.Context, requestID string, ch chan result) (*Response, error) {
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return c.ResponseChain.Run(res.response)
	case <-ctx.Done():
		c.fail(requestID, ctx.Err())
		return nil, ctx.Err()
	}
}

func (c *Client) fail(requestID string, err error) {
	c.Hub.Pending.Delete(bucketAck, requestID)
	c.Hub.Pending.Delete(bucketResponse, requestID)
	c.Hub.Pending.Delete(bucketAsync, requestID)

	c.mu.Lock()
	ch, ok := c.results[requestID]
	if ok {
		delete(c.results, requestID)
	}
	delete(c.callTimeouts, requestID)
	c.mu.Unlock()
	if ok {
		ch <- result{err: err}
	}
}

func (c *Client) resolve(requestID string, resp *Response) {
	c.Hub.Pending.Delete(bucketAck, requestID)
	c.Hub.Pending.Delete(bucketResponse, requestID)
	c.Hub.Pending.Delete(bucketAsync, requestID)

	c.mu.Lock()
	ch, ok := c.results[requestID]
	if ok {
		delete(c.results, requestID)
	}
	delete(c.callTimeouts, requestID)
	c.mu.Unlock()
	if ok {
		ch <- result{response: resp}
	}
}

// callTimeoutsFor looks up the per-call timeout overrides stashed at
// register time, falling back to the zero value (no override) if the
// request was never registered or was already cleaned up.
func (c *Client) callTimeoutsFor(requestID string) callTimeouts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callTimeouts[requestID]
}

func (c *Client) rememberTargetServer(env bhcore.Envelope) {
	if env.CreatorID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.targetServerID == "" {
		c.targetServerID = env.CreatorID
	}
}

func (c *Client) onAck(env bhcore.Envelope, _ string) bool {
	if c.Streams.HandleAck(env) {
		return true
	}
	if _, ok := c.Hub.Pending.Delete(bucketAck, env.RequestID); !ok {
		return false
	}
	c.rememberTargetServer(env)

	timeout := firstPositive(c.callTimeoutsFor(env.RequestID).timeout, c.DefaultTimeout)
	c.Hub.Pending.Set(bucketResponse, env.RequestID, &pending.Op{
		Continuation: func(timedOut bool) {
			if timedOut {
				c.fail(env.RequestID, bhcore.NewError(bhcore.CodeTimeout, "response timeout"))
			}
		},
	}, timeout)
	return true
}

func (c *Client) onAsync(env bhcore.Envelope, _ string) bool {
	// Either phase may still be outstanding when async arrives.
	_, ackPending := c.Hub.Pending.Delete(bucketAck, env.RequestID)
	_, responsePending := c.Hub.Pending.Delete(bucketResponse, env.RequestID)
	if !ackPending && !responsePending {
		return false
	}
	asyncTimeout := firstPositive(c.callTimeoutsFor(env.RequestID).asyncTimeout, c.DefaultAsyncTimeout)
	c.Hub.Pending.Set(bucketAsync, env.RequestID, &pending.Op{
		Continuation: func(timedOut bool) {
			if timedOut {
				c.fail(env.RequestID, bhcore.NewError(bhcore.CodeAsyncTimeout, "async timeout"))
			}
		},
	}, asyncTimeout)
	return true
}

func (c *Client) onResponse(env bhcore.Envelope, _ string) bool {
	claimedAny := false
	if _, ok := c.Hub.Pending.Delete(bucketResponse, env.RequestID); ok {
		claimedAny = true
	}
	if _, ok := c.Hub.Pending.Delete(bucketAsync, env.RequestID); ok {
		claimedAny = true
	}
	if !claimedAny {
		return false
	}

	if sc, ok := env.Headers["set-cookie"]; ok {
		c.Jar.ApplySetCookieHeader(sc)
	}
	c.resolve(env.RequestID, &Response{
		Status: env.Status, StatusText: env.StatusText, Headers: env.Headers, Body: env.Body,
	})
	return true
}

func (c *Client) onError(env bhcore.Envelope, _ string) bool {
	claimedAny := false
	for _, bucket := range []string{bucketAck, bucketResponse, bucketAsync} {
		if _, ok := c.Hub.Pending.Delete(bucket, env.RequestID); ok {
			claimedAny = true
		}
	}
	if !claimedAny {
		return false
	}
	code := bhcore.CodeRequestError
	msg := "request failed"
	if env.Error != nil {
		msg = env.Error.Message
		if env.Error.Code != "" {
			code = bhcore.Code(env.Error.Code)
		}
	}
	c.fail(env.RequestID, bhcore.NewError(code, msg))
	return true
}

func (c *Client) onStreamStart(env bhcore.Envelope, _ string) bool {
	body, ok := env.Body.(bhcore.StreamStartBody)
	if !ok {
		return false
	}
	claimedAny := false
	if _, ok := c.Hub.Pending.Delete(bucketResponse, env.RequestID); ok {
		claimedAny = true
	}
	if _, ok := c.Hub.Pending.Delete(bucketAsync, env.RequestID); ok {
		claimedAny = true
	}
	if !claimedAny {
		return false
	}

	codec := streaming.ChunkCodec(streaming.DataCodec{})
	if body.Type == "file" {
		codec = streaming.FileCodec{}
	}
	reader := streaming.NewReader(body.StreamID, codec, streaming.ReaderOptions{}, streaming.Binding{
		RequestID: env.RequestID, Role: bhcore.RoleClient, Dispatcher: c.Hub.Dispatcher, Registry: c.Streams, Heartbeat: c.Heartbeat,
	})

	if body.AutoResolve {
		go func() {
			merged, err := reader.Read(context.Background())
			if err != nil {
				c.fail(env.RequestID, err)
				return
			}
			c.resolve(env.RequestID, &Response{Status: 200, Body: merged})
		}()
		return true
	}
	c.resolve(env.RequestID, &Response{Status: 200, Reader: reader})
	return true
}

func (c *Client) drainAll() {
	drain := func(bucket string) {
		c.Hub.Pending.DrainBucket(bucket, func(op *pending.Op) {})
	}
	drain(bucketAck)
	drain(bucketResponse)
	drain(bucketAsync)

	c.mu.Lock()
	results := c.results
	c.results = make(map[string]chan result)
	c.callTimeouts = make(map[string]callTimeouts)
	c.mu.Unlock()
	for _, ch := range results {
		ch <- result{err: bhcore.NewError(bhcore.CodeEndpointClosed, "endpoint closed")}
	}
}
