// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command edged is the edge-tier daemon (spec §4.1 overview, §6
// "Edge<->Cloud: TCP", "Edge<->Device: BLE GATT"): it bridges a small
// set of BLE-attached actuators/sensors up to cloudd over one TCP
// connection, running every inbound message through the shared
// pipeline and router exactly as cmd/cloudd does, and runs the edge
// analyzer (spec §4.12) and time-sync client (spec §4.7) alongside it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/thejerf/suture/v4"

	_ "github.com/sieluna/blindsfabric/lib/automaxprocs"

	"github.com/sieluna/blindsfabric/internal/build"
	"github.com/sieluna/blindsfabric/lib/analyzer"
	"github.com/sieluna/blindsfabric/lib/beacon"
	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/framedtransport"
	"github.com/sieluna/blindsfabric/lib/idgen"
	"github.com/sieluna/blindsfabric/lib/logger"
	"github.com/sieluna/blindsfabric/lib/metrics"
	"github.com/sieluna/blindsfabric/lib/pipeline"
	"github.com/sieluna/blindsfabric/lib/protocol"
	"github.com/sieluna/blindsfabric/lib/rawtransport"
	"github.com/sieluna/blindsfabric/lib/router"
	"github.com/sieluna/blindsfabric/lib/suturewrap"
	"github.com/sieluna/blindsfabric/lib/timesync"
)

var logFacility = logger.DefaultLogger.NewFacility("edged", "edge daemon")

type cli struct {
	CloudAddr     string  `default:"127.0.0.1:8080" help:"cloudd's TCP address to bridge up to."`
	EdgeID        uint8   `default:"1" help:"This edge's id, as assigned by the cloud operator."`
	Devices       string  `default:"" help:"Comma-separated BLE MACs of attached actuators, e.g. 12:34:56:00:00:01,12:34:56:00:00:02."`
	MetricsListen string  `default:":9091" help:"Prometheus /metrics listen address."`
	BeaconAddr    string  `default:"[ff12::1234]:30303" help:"IPv6 multicast group for edge-to-edge discovery beacons."`
	RateRPS       float64 `default:"20" help:"Per-source-NodeId rate limit, requests per second (0 disables)."`
	RateBurst     int     `default:"10" help:"Per-source-NodeId rate limit burst size."`
}

func main() {
	var c cli
	kong.Parse(&c)

	logFacility.Infoln(build.Long("edged"))

	macs, err := parseMACList(c.Devices)
	if err != nil {
		logFacility.Criticalln("parsing -devices:", err)
		os.Exit(1)
	}

	a := newApp(c, macs)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.supervisor.Serve(ctx); err != nil && ctx.Err() == nil {
		logFacility.Criticalln("supervisor exited:", err)
		os.Exit(1)
	}
}

// app wires every edge-tier component together, mirroring cmd/cloudd's
// app: same pipeline/router layering, its own analyzer and Synchronizer
// in place of cloudd's coordinator.
type app struct {
	cli        cli
	supervisor *suture.Supervisor

	router   *router.Router
	engine   *pipeline.Engine
	analyzer *analyzer.EdgeAnalyzer
	sync     *timesync.Synchronizer
	builder  *protocol.MessageBuilder
	registry *deviceRegistry
	beacon   *beacon.Multicast

	bleDriver  rawtransport.BLECentralDriver
	cloudConn  atomic.Pointer[framedtransport.FramedTransport]
	seqCounter atomic.Uint32

	pendingSync struct {
		mu           sync.Mutex
		seq          uint32
		sentUptimeMs uint64
	}
}

func newApp(c cli, deviceMACs [][6]byte) *app {
	an := analyzer.New(config.DefaultAnalyzerConfig())

	gen := idgen.NewRandomGenerator()
	builder := protocol.NewMessageBuilder(gen, nil)

	r := router.New(protocol.NewEdge(c.EdgeID), c.RateRPS, c.RateBurst)

	a := &app{
		cli:      c,
		router:   r,
		analyzer: an,
		sync:     timesync.New(config.DefaultTimeSyncConfig()),
		builder:   builder,
		registry:  newDeviceRegistry(),
		beacon:    beacon.NewMulticast(c.BeaconAddr),
		bleDriver: unconfiguredBLEDriver{},
	}

	r.Register(&deviceReportHandler{app: a})
	r.Register(&cloudCommandHandler{app: a})
	r.Register(&timeSyncPushHandler{app: a})
	r.Freeze()

	a.engine = pipeline.RecommendedProfile(pipeline.ProfileBalanced, config.DefaultPipelineConfig())

	a.supervisor = suture.New("edged", suture.Spec{
		EventHook: func(ev suture.Event) { logFacility.Debugln(ev.String()) },
	})
	a.supervisor.Add(suturewrap.AsService(a.cloudLoop, "cloud-bridge"))
	a.supervisor.Add(suturewrap.AsService(a.timeSyncLoop, "time-sync"))
	a.supervisor.Add(suturewrap.AsService(a.metricsServer, "metrics-http"))
	a.supervisor.Add(suturewrap.AsService(a.beacon.Writer, "beacon-writer"))
	a.supervisor.Add(suturewrap.AsService(a.beacon.Reader, "beacon-reader"))
	a.supervisor.Add(suturewrap.AsService(a.beaconAnnounce, "beacon-announce"))
	for _, mac := range deviceMACs {
		mac := mac
		name := fmt.Sprintf("ble-device-%02x%02x%02x%02x%02x%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
		a.supervisor.Add(suturewrap.AsService(func(ctx context.Context) { a.deviceBridge(ctx, mac) }, name))
	}

	return a
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

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("expected host:port, got %q", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return addr[:idx], port, nil
}
