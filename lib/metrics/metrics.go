// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics registers the fabric's Prometheus instrumentation and
// exposes the /metrics HTTP handler the way the teacher's lib/api mounts
// promhttp.Handler(), plus a thin helper over rcrowley/go-metrics for
// the constrained edge/device code paths that would rather not pull in
// the full Prometheus client (SPEC_FULL.md DOMAIN STACK).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rcmetrics "github.com/rcrowley/go-metrics"
)

var (
	// MessagesProcessedTotal counts messages that completed a pipeline
	// run (spec §4.10), labeled by the node kind that processed them and
	// the payload kind carried.
	MessagesProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_processed_total",
		Help: "Messages that finished a pipeline run, by node and payload kind.",
	}, []string{"node", "payload"})

	// FrameDecodeErrorsTotal counts C3/C6 frame decode failures (CRC
	// mismatch, unknown protocol tag, truncated header), labeled by
	// cause (spec §7's error taxonomy).
	FrameDecodeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_decode_errors_total",
		Help: "Frame decode failures, by error kind.",
	}, []string{"kind"})

	// TimeSyncOffsetMs observes each completed sync sample's computed
	// clock offset (spec §4.7), labeled by peer NodeId string.
	TimeSyncOffsetMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "time_sync_offset_ms",
		Help:    "Computed clock offset per time-sync sample, in milliseconds.",
		Buckets: prometheus.LinearBuckets(-500, 100, 11),
	}, []string{"peer"})
)

func init() {
	prometheus.MustRegister(MessagesProcessedTotal, FrameDecodeErrorsTotal, TimeSyncOffsetMs)
}

// Handler returns the standard Prometheus scrape handler, mounted at
// /metrics the same way the teacher's API server wires promhttp.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DeviceTimer wraps rcrowley/go-metrics' GetOrRegisterTimer for
// constrained code paths, mirroring the teacher's metricsMiddleware
// pattern (lib/api/api.go) without depending on the Prometheus client.
func DeviceTimer(name string) rcmetrics.Timer {
	return rcmetrics.GetOrRegisterTimer(name, rcmetrics.DefaultRegistry)
}

// TimeSince records d against the named device-side timer, started at
// since.
func TimeSince(name string, since time.Time) {
	DeviceTimer(name).UpdateSince(since)
}
