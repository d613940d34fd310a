// Package main is the entry point for the bridgehubd demo process: a
// loopback client/server endpoint pair wired to a read-only HTTP
// introspection shell.
package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/bridgehub/bridgehub/internal/bridgehttp"
	"github.com/bridgehub/bridgehub/internal/clientrole"
	"github.com/bridgehub/bridgehub/internal/config"
	"github.com/bridgehub/bridgehub/internal/cookiejar"
	"github.com/bridgehub/bridgehub/internal/heartbeat"
	"github.com/bridgehub/bridgehub/internal/hub"
	"github.com/bridgehub/bridgehub/internal/serverrole"
	"github.com/bridgehub/bridgehub/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the bridgehub config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	registry := bridgehttp.NewRegistry()

	clientHub, serverHub := buildLoopback(cfg)
	registry.Add(clientHub, "client")
	registry.Add(serverHub, "server")

	srv := serverrole.New(serverHub, heartbeat.New(serverHub.Dispatcher, serverHub.Pending))
	srv.DefaultAckTimeout = cfg.Timeouts.Ack
	srv.MaxConcurrentPerClient = cfg.Endpoint.MaxConcurrentPerClient
	registerDemoRoutes(srv)

	// client is unused beyond populating the introspection registry in
	// this shell; a real embedder would issue requests through it.
	_ = clientrole.New(clientHub, cookiejar.New(), heartbeat.New(clientHub.Dispatcher, clientHub.Pending))

	httpSrv := &http.Server{
		Addr:         cfg.Bridge.ListenAddr,
		Handler:      bridgehttp.New(registry),
		ReadTimeout:  cfg.Bridge.ReadTimeout,
		WriteTimeout: cfg.Bridge.WriteTimeout,
	}

	log.Printf("bridgehubd listening on %s (endpoint %q)", cfg.Bridge.ListenAddr, cfg.Endpoint.ID)
	if err := httpSrv.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildLoopback opens the in-process transport pipe the demo client and
// server endpoints exchange envelopes over. The configured allowed
// origins gate inbound envelopes only in strict mode; otherwise every
// origin is accepted.
func buildLoopback(cfg *config.BridgeConfig) (clientHub, serverHub *hub.Hub) {
	clientOrigin := "bridgehub-client"
	a, b := transport.NewPipe(clientOrigin, cfg.Endpoint.TargetOrigin)
	chanA := transport.NewChannel(a, cfg.Endpoint.SecretKey)
	chanB := transport.NewChannel(b, cfg.Endpoint.SecretKey)

	originPolicy := hub.Allow()
	if cfg.Endpoint.Strict && len(cfg.Endpoint.AllowedOrigins) > 0 {
		originPolicy = hub.AllowExact(cfg.Endpoint.AllowedOrigins...)
	}

	clientHub = hub.New(chanA, hub.Options{ID: clientOrigin, TargetOrigin: cfg.Endpoint.TargetOrigin, Origin: originPolicy})
	serverHub = hub.New(chanB, hub.Options{ID: cfg.Endpoint.ID, TargetOrigin: clientOrigin, Origin: originPolicy})
	return clientHub, serverHub
}

// registerDemoRoutes wires the handful of routes that exercise the
// request/response, streaming, and cookie paths end to end — a
// diagnostic fixture, not application logic.
func registerDemoRoutes(srv *serverrole.Server) {
	srv.Handle("/health", func(req *serverrole.ServerRequest, res *serverrole.ServerResponse) {
		res.Json(map[string]any{"status": "ok"}, serverrole.ReplyOptions{})
	})

	srv.Handle("/echo/:id", func(req *serverrole.ServerRequest, res *serverrole.ServerResponse) {
		res.Json(map[string]any{"id": req.Params["id"], "body": req.Body}, serverrole.ReplyOptions{})
	})

	srv.HandleAsync("/slow", func(req *serverrole.ServerRequest, res *serverrole.ServerResponse) {
		time.Sleep(50 * time.Millisecond)
		res.Send(map[string]any{"status": "done"}, serverrole.ReplyOptions{})
	})
}
