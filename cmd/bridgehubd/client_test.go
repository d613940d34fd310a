package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"

	"github.com/bridgehub/bridgehub/internal/bridgehttp"
	"github.com/bridgehub/bridgehub/internal/hub"
	"github.com/bridgehub/bridgehub/internal/transport"
)

// TestIntrospectionEndpoints_RoundTrip drives the demo bridgehttp shell
// through a recording VCR transport (gopkg.in/dnaeon/go-vcr.v4): the
// first run against a missing cassette records the real round trip, and
// every run after that replays it byte-for-byte. This is the one
// dependency in the pack with no home inside the core protocol, so it
// exercises the demo binary's HTTP surface instead.
func TestIntrospectionEndpoints_RoundTrip(t *testing.T) {
	registry := bridgehttp.NewRegistry()
	a, _ := transport.NewPipe("demo-client", "demo-server")
	ch := transport.NewChannel(a, "")
	h := hub.New(ch, hub.Options{ID: "demo-server", TargetOrigin: "*", Origin: hub.Allow()})
	t.Cleanup(h.Close)
	registry.Add(h, "server")

	upstream := httptest.NewServer(bridgehttp.New(registry))
	t.Cleanup(upstream.Close)

	cassettePath := filepath.Join("testdata", "introspection")
	rec, err := recorder.New(cassettePath, recorder.WithMode(recorder.ModeRecordOnce))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Stop() })

	client := &http.Client{Transport: rec}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, upstream.URL+"/v1/endpoints", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var endpoints []bridgehttp.EndpointSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&endpoints))
	require.Len(t, endpoints, 1)
	assert.Equal(t, "demo-server", endpoints[0].ID)
}
