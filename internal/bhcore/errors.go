// Package bhcore holds the small, dependency-free pieces that every other
// bridgehub package builds on: the envelope type, the typed error, id
// generation, the hook pub/sub helper, and the package-level logger.
//
// Nothing in here imports any other bridgehub package — it's the leaf of
// the dependency graph, the way provider.go sits under server and stream
// in the teacher gateway.
package bhcore

import "fmt"

// Code is one of the error kinds from the protocol's error taxonomy.
// These are kinds, not Go types — every failure mode in bridgehub is an
// *Error with one of these codes, so callers can switch on Code instead
// of doing type assertions.
type Code string

const (
	CodeIframeNotReady      Code = "IFRAME_NOT_READY"
	CodeProtocolUnsupported Code = "PROTOCOL_UNSUPPORTED"
	CodeAckTimeout          Code = "ACK_TIMEOUT"
	CodeTimeout             Code = "TIMEOUT"
	CodeAsyncTimeout        Code = "ASYNC_TIMEOUT"
	CodeMethodNotFound      Code = "METHOD_NOT_FOUND"
	CodeNoResponse          Code = "NO_RESPONSE"
	CodeTooManyRequests     Code = "TOO_MANY_REQUESTS"
	CodeTargetWindowClosed  Code = "TARGET_WINDOW_CLOSED"
	CodeRequestError        Code = "REQUEST_ERROR"
	CodeStreamError         Code = "STREAM_ERROR"
	CodeStreamCancelled     Code = "STREAM_CANCELLED"
	CodeStreamNotBound      Code = "STREAM_NOT_BOUND"
	CodeStreamStartTimeout  Code = "STREAM_START_TIMEOUT"
	CodeStreamOverflow      Code = "STREAM_OVERFLOW"
	CodeEndpointClosed      Code = "ENDPOINT_CLOSED"
)

// Error is the single error type used across bridgehub. Every failure
// mode from the protocol's error taxonomy is an *Error with the matching
// Code, so callers can do:
//
//	var berr *bhcore.Error
//	if errors.As(err, &berr) && berr.Code == bhcore.CodeAckTimeout { ... }
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error with no wrapped cause.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds an *Error that wraps an underlying cause, the way the
// teacher wraps config/provider failures with fmt.Errorf("...: %w", err).
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
