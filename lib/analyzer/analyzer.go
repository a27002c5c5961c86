// Copyright (C) 2024 The blindsfabric Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package analyzer implements the edge analyzer hook (spec §4.12): a
// latest-known-state table per device plus a pluggable, insertion-order
// rule set that turns that state into an adjustment hint. Grounded on
// lib/timesynccoord's xsync.MapOf-backed registry for the concurrent
// per-device table, and on the teacher's cmd/syncthing/cpuusage.go use
// of github.com/rcrowley/go-metrics for the update/query counters.
package analyzer

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sieluna/blindsfabric/lib/config"
	"github.com/sieluna/blindsfabric/lib/protocol"
)

// DeviceState is the latest-known snapshot analyzer.EdgeAnalyzer keeps
// per device (spec §4.12: "position, battery, last_update").
type DeviceState struct {
	Position   uint8
	Battery    uint8
	LastUpdate time.Time
}

// Rule evaluates a DeviceState and returns a hint position and true if
// it fires. Rules run in registration order; the first match wins
// (spec §4.12).
type Rule interface {
	Evaluate(state DeviceState) (hint uint8, fires bool)
}

// RuleFunc adapts a plain function to Rule.
type RuleFunc func(state DeviceState) (uint8, bool)

func (f RuleFunc) Evaluate(state DeviceState) (uint8, bool) { return f(state) }

// LowBatteryCloseRule is the reference rule spec §4.12 names: below
// threshold percent battery, hint the window closed (position 0) to cut
// actuator power draw.
func LowBatteryCloseRule(threshold uint8) Rule {
	return RuleFunc(func(state DeviceState) (uint8, bool) {
		if state.Battery < threshold {
			return 0, true
		}
		return 0, false
	})
}

// EdgeAnalyzer maintains the per-device state table and evaluates rules
// on query. The registry uses xsync.MapOf so status updates and hint
// queries never block each other, matching the read/write-lock
// independence spec §5 asks of the coordinator's peer map.
type EdgeAnalyzer struct {
	cfg   config.AnalyzerConfig
	rules []Rule

	states *xsync.MapOf[protocol.DeviceId, DeviceState]

	updates metrics.Counter
	hints   metrics.Counter
}

// New builds an EdgeAnalyzer with the reference low-battery rule
// pre-registered; callers append further rules with AddRule before the
// first Hint call.
func New(cfg config.AnalyzerConfig) *EdgeAnalyzer {
	a := &EdgeAnalyzer{
		cfg:     cfg,
		states:  xsync.NewMapOf[protocol.DeviceId, DeviceState](),
		updates: metrics.NewCounter(),
		hints:   metrics.NewCounter(),
	}
	a.rules = append(a.rules, LowBatteryCloseRule(cfg.LowBatteryThreshold))
	return a
}

// AddRule appends a rule to the end of the evaluation order.
func (a *EdgeAnalyzer) AddRule(r Rule) {
	a.rules = append(a.rules, r)
}

// Observe records a device-status update, replacing any prior state for
// that device (spec §4.12: "Consumes device-status updates").
func (a *EdgeAnalyzer) Observe(id protocol.DeviceId, position, battery uint8, at time.Time) {
	a.states.Store(id, DeviceState{Position: position, Battery: battery, LastUpdate: at})
	a.updates.Inc(1)
}

// State returns the latest-known snapshot for id, if any has been
// observed yet.
func (a *EdgeAnalyzer) State(id protocol.DeviceId) (DeviceState, bool) {
	return a.states.Load(id)
}

// Hint evaluates the rule set against id's latest state and returns an
// adjustment hint, or false if no rule fired, the device is unknown, or
// its last update is older than cfg.StaleAfter (a state too old to act
// on is treated the same as no state at all).
func (a *EdgeAnalyzer) Hint(id protocol.DeviceId, now time.Time) (uint8, bool) {
	state, ok := a.states.Load(id)
	if !ok {
		return 0, false
	}
	if a.cfg.StaleAfter > 0 && now.Sub(state.LastUpdate) > a.cfg.StaleAfter {
		return 0, false
	}
	for _, rule := range a.rules {
		if hint, fires := rule.Evaluate(state); fires {
			a.hints.Inc(1)
			return hint, true
		}
	}
	return 0, false
}

// Counters exposes the update/hint go-metrics counters for registration
// with a metrics.Registry (e.g. via lib/metrics).
func (a *EdgeAnalyzer) Counters() (updates, hints metrics.Counter) {
	return a.updates, a.hints
}

// Forget removes a device's state, used when a device is unregistered
// or its edge disconnects.
func (a *EdgeAnalyzer) Forget(id protocol.DeviceId) {
	a.states.Delete(id)
}
