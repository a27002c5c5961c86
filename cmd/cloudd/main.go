// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command cloudd is the cloud-tier daemon (spec §4.1 overview, §6
// "Edge↔Cloud: TCP to host:port, default 8080"): it accepts edge
// connections, runs each inbound message through the standard pipeline,
// dispatches it through the router, and answers time-sync requests via
// the coordinator. Structured the way the teacher's cmd/stdiscosrv main
// wires a flag-configured listener and a suture supervisor tree, with
// kong replacing the teacher's own flag parsing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/thejerf/suture/v4"

	_ "github.com/sieluna/blindsfabric/lib/automaxprocs"

	"github.com/sieluna/blindsfabric/internal/build"
	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/idgen"
	"github.com/sieluna/blindsfabric/lib/logger"
	"github.com/sieluna/blindsfabric/lib/metrics"
	"github.com/sieluna/blindsfabric/lib/pipeline"
	"github.com/sieluna/blindsfabric/lib/protocol"
	"github.com/sieluna/blindsfabric/lib/rawtransport"
	"github.com/sieluna/blindsfabric/lib/router"
	"github.com/sieluna/blindsfabric/lib/suturewrap"
	"github.com/sieluna/blindsfabric/lib/timesynccoord"
)

var logFacility = logger.DefaultLogger.NewFacility("cloudd", "cloud daemon")

type cli struct {
	Listen          string `default:":8080" help:"Edge-facing TCP listen address."`
	MetricsListen   string `default:":9090" help:"Prometheus /metrics listen address."`
	AuthorizedEdges string `default:"" help:"Comma-separated edge ids (e.g. 1,2,3) allowed to request time sync."`
	RateRPS         float64 `default:"50" help:"Per-source-NodeId rate limit, requests per second (0 disables)."`
	RateBurst       int     `default:"20" help:"Per-source-NodeId rate limit burst size."`
}

func main() {
	var c cli
	kong.Parse(&c)

	logFacility.Infoln(build.Long("cloudd"))

	edges, err := parseEdgeList(c.AuthorizedEdges)
	if err != nil {
		logFacility.Criticalln("parsing -authorized-edges:", err)
		os.Exit(1)
	}

	app, err := newApp(c, edges)
	if err != nil {
		logFacility.Criticalln("startup:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.supervisor.Serve(ctx); err != nil && ctx.Err() == nil {
		logFacility.Criticalln("supervisor exited:", err)
		os.Exit(1)
	}
}

func parseEdgeList(s string) ([]uint8, error) {
	if s == "" {
		return nil, nil
	}
	var out []uint8
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid edge id %q: %w", part, err)
		}
		out = append(out, uint8(n))
	}
	return out, nil
}

// app wires every cloud-tier component together; see lib/router,
// lib/pipeline, lib/timesynccoord for the pieces assembled here.
type app struct {
	cli        cli
	supervisor *suture.Supervisor

	router      *router.Router
	engine      *pipeline.Engine
	coordinator *timesynccoord.Coordinator
	builder     *protocol.MessageBuilder

	listener *rawtransport.TCPListener
}

func newApp(c cli, authorizedEdges []uint8) (*app, error) {
	coordCfg := config.DefaultCoordinatorConfig()
	coordCfg.AuthorizedEdges = authorizedEdges
	syncCfg := config.DefaultTimeSyncConfig()
	coordinator := timesynccoord.New(coordCfg, syncCfg, nowMs)

	gen := idgen.NewRandomGenerator()
	builder := protocol.NewMessageBuilder(gen, nil)

	r := router.New(protocol.NewCloud(), c.RateRPS, c.RateBurst)

	a := &app{cli: c, router: r, coordinator: coordinator, builder: builder}

	r.Register(&timeSyncHandler{coordinator: coordinator})
	r.Register(&edgeReportHandler{router: r})
	r.Freeze()

	a.engine = pipeline.RecommendedProfile(pipeline.ProfileBalanced, config.DefaultPipelineConfig())

	dialOpts := config.DefaultTCPDialOptions()
	host, port, err := splitHostPort(c.Listen)
	if err != nil {
		return nil, err
	}
	dialOpts.Host, dialOpts.Port = host, port

	ln, err := rawtransport.ListenTCP(dialOpts)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", c.Listen, err)
	}
	a.listener = ln

	a.supervisor = suture.New("cloudd", suture.Spec{
		EventHook: func(ev suture.Event) { logFacility.Debugln(ev.String()) },
	})
	a.supervisor.Add(suturewrap.AsService(a.acceptLoop, "tcp-accept"))
	a.supervisor.Add(suturewrap.AsService(a.metricsServer, "metrics-http"))

	return a, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := splitAddr(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}

func splitAddr(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("expected host:port, got %q", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}

func nowMs() uint64 { return uint64(time.Now().UnixMilli()) }

func (a *app) acceptLoop(ctx context.Context) {
	go func() {
		<-ctx.Done()
		a.listener.Close()
	}()
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logFacility.Warnln("accept:", err)
			continue
		}
		go a.serveEdgeConn(ctx, conn)
	}
}

func (a *app) metricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: a.cli.MetricsListen, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && ctx.Err() == nil {
		logFacility.Warnln("metrics server:", err)
	}
}
