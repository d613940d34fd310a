package clientrole

import (
	"time"

	"github.com/bridgehub/bridgehub/internal/streaming"
)

// HeaderValue is either a plain string or a function resolved against
// the in-flight RequestConfig (§4.8 step 2's "headers may include
// dynamic functions").
type HeaderValue any

// HeaderFunc is the dynamic-header shape a HeaderValue may hold.
type HeaderFunc func(cfg *RequestConfig) string

// RequestConfig is the value threaded through the request interceptor
// chain (§4.8 step 2-3).
type RequestConfig struct {
	Path      string
	Body      any
	Headers   map[string]HeaderValue
	Cookies   map[string]string
	RequestID string
	TargetID  string
}

// FileMeta describes a file body for SendFile (§4.8.2).
type FileMeta struct {
	FileName string
	MimeType string
	Size     int
}

// Response is what Send resolves with (§4.8).
type Response struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Body       any
	Reader     *streaming.Reader // non-nil when the server replied with a stream
}

// SendOptions customizes one Send/SendFile/SendStream call, overriding
// the client's configured defaults.
type SendOptions struct {
	Headers     map[string]HeaderValue
	Cookies     map[string]string
	TargetID    string
	AckTimeout  time.Duration
	Timeout     time.Duration
	AsyncTimeout time.Duration
	RequireAck  bool
	AutoResolve bool
}

func firstPositive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
