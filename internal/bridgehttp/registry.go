// Package bridgehttp is the demo introspection shell around a running
// set of bridgehub endpoints: a thin read-only HTTP view of what
// internal/hub already tracks, never a path the protocol itself uses.
package bridgehttp

import (
	"sync"

	"github.com/bridgehub/bridgehub/internal/hub"
)

// Registry tracks the hubs a demo process has opened, so the HTTP shell
// can list them and report their outstanding pending-op buckets.
type Registry struct {
	mu    sync.Mutex
	hubs  map[string]*hub.Hub
	roles map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hubs: make(map[string]*hub.Hub), roles: make(map[string]string)}
}

// Add registers h under its ID, tagged with a human-readable role label
// ("client" or "server") for the /v1/endpoints listing. Add also wires
// h.OnDestroy to self-remove the entry, so a closed endpoint stops
// appearing in the listing without the caller having to track that.
func (r *Registry) Add(h *hub.Hub, role string) {
	r.mu.Lock()
	r.hubs[h.ID] = h
	r.roles[h.ID] = role
	r.mu.Unlock()

	h.OnDestroy.On(func(struct{}) {
		r.mu.Lock()
		delete(r.hubs, h.ID)
		delete(r.roles, h.ID)
		r.mu.Unlock()
	})
}

// EndpointSummary is the JSON shape returned for each tracked endpoint.
type EndpointSummary struct {
	ID     string `json:"id"`
	Role   string `json:"role"`
	Closed bool   `json:"closed"`
}

// List returns a summary of every currently tracked endpoint.
func (r *Registry) List() []EndpointSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EndpointSummary, 0, len(r.hubs))
	for id, h := range r.hubs {
		out = append(out, EndpointSummary{ID: id, Role: r.roles[id], Closed: h.IsClosed()})
	}
	return out
}

// Pending returns the pending-op bucket snapshot for endpoint id, and
// whether that endpoint is known at all.
func (r *Registry) Pending(id string) (map[string]int, bool) {
	r.mu.Lock()
	h, ok := r.hubs[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return h.Pending.Snapshot(), true
}
