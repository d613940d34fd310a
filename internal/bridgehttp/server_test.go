package bridgehttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgehub/bridgehub/internal/hub"
	"github.com/bridgehub/bridgehub/internal/pending"
	"github.com/bridgehub/bridgehub/internal/transport"
)

func newTestHub(t *testing.T, id string) *hub.Hub {
	t.Helper()
	a, _ := transport.NewPipe(id+"-origin", "peer-origin")
	ch := transport.NewChannel(a, "")
	h := hub.New(ch, hub.Options{ID: id, TargetOrigin: "*", Origin: hub.Allow()})
	t.Cleanup(h.Close)
	return h
}

func TestServer_HealthReportsOK(t *testing.T) {
	s := New(NewRegistry())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_ListEndpointsReportsRegistered(t *testing.T) {
	reg := NewRegistry()
	reg.Add(newTestHub(t, "server-1"), "server")

	s := New(reg)
	req := httptest.NewRequest(http.MethodGet, "/v1/endpoints", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var got []EndpointSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "server-1", got[0].ID)
	assert.Equal(t, "server", got[0].Role)
	assert.False(t, got[0].Closed)
}

func TestServer_PendingForUnknownEndpointReturns404(t *testing.T) {
	s := New(NewRegistry())
	req := httptest.NewRequest(http.MethodGet, "/v1/endpoints/ghost/pending", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_PendingForKnownEndpointReportsSnapshot(t *testing.T) {
	reg := NewRegistry()
	h := newTestHub(t, "server-2")
	reg.Add(h, "server")
	h.Pending.Set("server-ack", "req-1", &pending.Op{Continuation: func(bool) {}}, 0)

	s := New(reg)
	req := httptest.NewRequest(http.MethodGet, "/v1/endpoints/server-2/pending", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var snap map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap["server-ack"])
}

func TestServer_RemovedOnEndpointClose(t *testing.T) {
	reg := NewRegistry()
	h := newTestHub(t, "server-3")
	reg.Add(h, "server")
	h.Close()

	assert.Empty(t, reg.List())
}
