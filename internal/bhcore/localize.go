package bhcore

// Messages is the explicit dictionary lookup that replaces the source
// system's dynamic-proxy message localization (§9 design notes: "replace
// with an explicit dictionary lookup with a default-to-key fallback").
// Keys are the Code values from errors.go; values are human-readable
// templates. A caller can register additional locales with RegisterLocale
// without touching the default set.
type Messages map[Code]string

var defaultMessages = Messages{
	CodeIframeNotReady:      "target window is not ready",
	CodeProtocolUnsupported: "protocol version is below the minimum supported version",
	CodeAckTimeout:          "timed out waiting for acknowledgment",
	CodeTimeout:             "timed out waiting for a response",
	CodeAsyncTimeout:        "timed out waiting for an async response",
	CodeMethodNotFound:      "no route matched the request path",
	CodeNoResponse:          "handler returned without sending a response",
	CodeTooManyRequests:     "too many concurrent requests from this client",
	CodeTargetWindowClosed:  "target window is no longer reachable",
	CodeRequestError:        "the request handler reported an error",
	CodeStreamError:         "the stream encountered an error",
	CodeStreamCancelled:     "the stream was cancelled",
	CodeStreamNotBound:      "the stream has not been bound to a request context",
	CodeStreamStartTimeout:  "timed out waiting for the stream to start",
	CodeStreamOverflow:      "the stream's pending chunk or byte limit was exceeded",
	CodeEndpointClosed:      "the endpoint has been closed",
}

var locales = map[string]Messages{"en": defaultMessages}

// RegisterLocale adds or replaces the message dictionary for a locale
// tag. Unregistered codes in a locale fall back to the "en" default, and
// an entirely unregistered locale falls back to "en" as a whole.
func RegisterLocale(tag string, messages Messages) {
	locales[tag] = messages
}

// Localize looks up the human-readable message for a code in the given
// locale. If the locale isn't registered, falls back to "en". If the
// code isn't present even in "en", the code itself is returned as the
// fallback — never a blank string.
func Localize(locale string, code Code) string {
	dict, ok := locales[locale]
	if !ok {
		dict = locales["en"]
	}
	if msg, ok := dict[code]; ok {
		return msg
	}
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return string(code)
}
