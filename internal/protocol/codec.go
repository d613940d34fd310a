// Package protocol implements the frame codec (spec §4.1): stamping and
// validating the envelope's wire-level invariants so that every
// downstream package can assume a shape-checked Envelope and never has
// to re-inspect the raw wire form.
//
// Version policy is floor-only, the same way a real HTTP server accepts
// any client above a minimum TLS version rather than pinning an exact
// one: newer senders keep working against older receivers as long as
// they stay at or above bhcore.MinProtocolVersion.
package protocol

import (
	"time"

	"github.com/bridgehub/bridgehub/internal/bhcore"
)

// Encode stamps a new Envelope with the current protocol version and
// timestamp, filling in the type and requestId the caller supplies, and
// applying whatever field values the caller passes via fields.
func Encode(typ bhcore.Type, requestID string, fields bhcore.Envelope) bhcore.Envelope {
	env := fields
	env.Protocol = bhcore.CurrentProtocolVersion
	env.Timestamp = time.Now()
	env.Type = typ
	env.RequestID = requestID
	return env
}

// ValidationResult is the {ok, reason?} pair from §4.1.
type ValidationResult struct {
	OK     bool
	Reason string
}

func invalid(reason string) ValidationResult {
	return ValidationResult{OK: false, Reason: reason}
}

var validTypes = map[bhcore.Type]bool{
	bhcore.TypeRequest:      true,
	bhcore.TypeAck:          true,
	bhcore.TypeAsync:        true,
	bhcore.TypeResponse:     true,
	bhcore.TypeError:        true,
	bhcore.TypeReceived:     true,
	bhcore.TypePing:         true,
	bhcore.TypePong:         true,
	bhcore.TypeStreamStart:  true,
	bhcore.TypeStreamData:   true,
	bhcore.TypeStreamEnd:    true,
	bhcore.TypeStreamError:  true,
	bhcore.TypeStreamCancel: true,
	bhcore.TypeStreamPull:   true,
	bhcore.TypeStreamAck:    true,
}

// Validate checks the wire-level invariants of an envelope: a version
// marker must be present and at or above the minimum supported version,
// type must be one of the known kinds, and requestId must be non-empty.
//
// This is the single validation gate the spec calls for — nothing
// downstream needs to re-check these three things.
func Validate(env bhcore.Envelope) ValidationResult {
	if env.Protocol == 0 {
		return invalid("missing __protocol__ version marker")
	}
	if env.Protocol < bhcore.MinProtocolVersion {
		return invalid("protocol version below minimum supported version")
	}
	if env.Type == "" || !validTypes[env.Type] {
		return invalid("missing or unrecognized type")
	}
	if env.RequestID == "" {
		return invalid("missing requestId")
	}
	return ValidationResult{OK: true}
}
