package streaming

import (
	"github.com/bridgehub/bridgehub/internal/bhcore"
	"github.com/bridgehub/bridgehub/internal/dispatch"
	"github.com/bridgehub/bridgehub/internal/heartbeat"
)

// Binding ties a Writer or Reader to the request context it streams
// under (§4.7.5): which dispatcher carries its frames, which role
// produced it (stamped on its outbound frames so the peer can tell
// server- from client-produced streams), and which heartbeat to probe on
// an idle timeout.
type Binding struct {
	RequestID string
	Role      bhcore.Role
	CreatorID string
	TargetID  string

	Dispatcher *dispatch.Dispatcher
	Registry   *Registry
	Heartbeat  *heartbeat.Heartbeat
}
